package filters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mapkeep/internal/intercept"
	"mapkeep/internal/overrides"
)

// noteInput is the note payload the application posts. Coordinates arrive
// as numbers or numeric strings.
type noteInput struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Color       *string     `json:"color"`
	Latitude    json.Number `json:"latitude"`
	Longitude   json.Number `json:"longitude"`
	Category    *int        `json:"category"`
}

func (in noteInput) apply(n *overrides.Note) error {
	lat, err := in.Latitude.Float64()
	if err != nil {
		return fmt.Errorf("filters: latitude: %w", err)
	}
	lng, err := in.Longitude.Float64()
	if err != nil {
		return fmt.Errorf("filters: longitude: %w", err)
	}
	n.Title = in.Title
	n.Description = in.Description
	n.Color = in.Color
	n.Latitude = lat
	n.Longitude = lng
	n.Category = in.Category
	return nil
}

// errDuplicateNote aborts the update when an equivalent note already exists;
// the existing note is returned and nothing is saved.
var errDuplicateNote = errors.New("filters: duplicate note")

func createNote(env Env) intercept.FilterFunc {
	return func(ctx context.Context, c *intercept.Call) (any, error) {
		var in noteInput
		if err := decodeData(c.Data, &in); err != nil {
			return nil, err
		}
		id := env.Maps.Identity()
		n := overrides.Note{MapID: id.MapID, UserID: id.UserID}
		if err := in.apply(&n); err != nil {
			return nil, err
		}

		var stored overrides.Note
		err := env.update(ctx, ChangeNote, func(rec *overrides.Record) error {
			var inserted bool
			stored, inserted = rec.AddNote(n)
			if !inserted {
				return errDuplicateNote
			}
			return nil
		})
		if err != nil && !errors.Is(err, errDuplicateNote) {
			return nil, err
		}
		c.Block()
		return stored, nil
	}
}

func updateNote(env Env) intercept.FilterFunc {
	return func(ctx context.Context, c *intercept.Call) (any, error) {
		var in noteInput
		if err := decodeData(c.Data, &in); err != nil {
			return nil, err
		}
		var n overrides.Note
		err := env.update(ctx, ChangeNote, func(rec *overrides.Record) error {
			var ok bool
			if n, ok = rec.FindNote(c.ID); !ok {
				return fmt.Errorf("filters: note %q not found", c.ID)
			}
			if err := in.apply(&n); err != nil {
				return err
			}
			rec.UpdateNote(n)
			return nil
		})
		if err != nil {
			return nil, err
		}
		c.Block()
		return n, nil
	}
}

func deleteNote(env Env) intercept.FilterFunc {
	return func(ctx context.Context, c *intercept.Call) (any, error) {
		err := env.update(ctx, ChangeNote, func(rec *overrides.Record) error {
			if !rec.DeleteNote(c.ID) {
				return fmt.Errorf("filters: note %q not found", c.ID)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		c.Block()
		return map[string]any{}, nil
	}
}

func registerNotes(p *intercept.Pipeline, env Env) error {
	return registerAll(p, env, []registration{
		{"post", "notes", false, createNote(env)},
		{"put", "notes", true, updateNote(env)},
		{"delete", "notes", true, deleteNote(env)},
	})
}
