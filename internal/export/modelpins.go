package export

import (
	"context"
	"database/sql"

	"github.com/evidencerec/core/internal/errs"
)

// roleColumns are the three model_roles columns named in §3.8: the roles a
// manifest's model_pins are resolved for.
var roleColumns = []string{"tutorial_generation", "screen_explainer", "anchor_grounding"}

// loadModelPins resolves model_roles -> models into the manifest's
// model_pins list. Roles with no assigned model (NULL column, or the
// model_roles row not yet seeded) are simply omitted; a manifest from a
// freshly initialized database carries an empty model_pins list.
func loadModelPins(ctx context.Context, db *sql.DB) ([]ModelPin, error) {
	var tutorialGen, screenExplainer, anchorGrounding sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT tutorial_generation, screen_explainer, anchor_grounding
		FROM model_roles WHERE id = 1`).Scan(&tutorialGen, &screenExplainer, &anchorGrounding)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB(err, "export: read model_roles")
	}

	assignments := []struct {
		role    string
		modelID sql.NullString
	}{
		{roleColumns[0], tutorialGen},
		{roleColumns[1], screenExplainer},
		{roleColumns[2], anchorGrounding},
	}

	var pins []ModelPin
	for _, a := range assignments {
		if !a.modelID.Valid || a.modelID.String == "" {
			continue
		}
		var digest string
		err := db.QueryRowContext(ctx, `SELECT digest FROM models WHERE model_id = ?`, a.modelID.String).Scan(&digest)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, errs.NewDB(err, "export: read models row for %q", a.modelID.String)
		}
		pins = append(pins, ModelPin{Role: a.role, ModelID: a.modelID.String, Digest: digest})
	}
	return pins, nil
}
