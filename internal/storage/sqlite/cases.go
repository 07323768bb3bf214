package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/autoaid/backend/internal/storage/models"
)

func (c *Client) InsertVehicle(ctx context.Context, v *models.VehicleProfile) error {
	query := `
	INSERT INTO vehicles
		(id, owner_ref, nickname, make, model, trim, year, engine_cc,
		 transmission, fuel_type, mileage_km, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.db.ExecContext(ctx, query,
		v.ID, v.OwnerRef, v.Nickname, v.Make, v.Model, v.Trim, v.Year,
		v.EngineCC, v.Transmission, v.FuelType, v.MileageKM,
		v.CreatedAt.Unix(), v.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert vehicle: %w", err)
	}
	return nil
}

func (c *Client) GetVehicle(ctx context.Context, id string) (*models.VehicleProfile, error) {
	query := `
	SELECT id, owner_ref, nickname, make, model, trim, year, engine_cc,
	       transmission, fuel_type, mileage_km, created_at, updated_at
	FROM vehicles WHERE id = ?
	`

	var (
		v                models.VehicleProfile
		created, updated int64
	)
	err := c.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID, &v.OwnerRef, &v.Nickname, &v.Make, &v.Model, &v.Trim, &v.Year,
		&v.EngineCC, &v.Transmission, &v.FuelType, &v.MileageKM, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}

	v.CreatedAt = time.Unix(created, 0)
	v.UpdatedAt = time.Unix(updated, 0)
	return &v, nil
}

func (c *Client) ListVehicles(ctx context.Context, ownerRef string, limit int) ([]models.VehicleProfile, error) {
	query := `
	SELECT id, owner_ref, nickname, make, model, trim, year, engine_cc,
	       transmission, fuel_type, mileage_km, created_at, updated_at
	FROM vehicles
	`
	args := []interface{}{}
	if ownerRef != "" {
		query += " WHERE owner_ref = ?"
		args = append(args, ownerRef)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	defer rows.Close()

	var out []models.VehicleProfile
	for rows.Next() {
		var (
			v                models.VehicleProfile
			created, updated int64
		)
		if err := rows.Scan(&v.ID, &v.OwnerRef, &v.Nickname, &v.Make, &v.Model, &v.Trim, &v.Year,
			&v.EngineCC, &v.Transmission, &v.FuelType, &v.MileageKM, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		v.CreatedAt = time.Unix(created, 0)
		v.UpdatedAt = time.Unix(updated, 0)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (c *Client) InsertCase(ctx context.Context, cs *models.CaseSession) error {
	metadata, err := marshalMap(cs.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal case metadata: %w", err)
	}

	query := `
	INSERT INTO case_sessions
		(id, vehicle_id, channel, status, current_risk_level, initial_problem_title,
		 latest_user_message, final_summary, metadata, opened_at, closed_at, last_activity_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = c.db.ExecContext(ctx, query,
		cs.ID, cs.VehicleID, cs.Channel, cs.Status, cs.CurrentRiskLevel,
		cs.InitialProblemTitle, cs.LatestUserMessage, cs.FinalSummary, metadata,
		cs.OpenedAt.Unix(), nullableTime(cs.ClosedAt), cs.LastActivityAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert case: %w", err)
	}
	return nil
}

func (c *Client) GetCase(ctx context.Context, id string) (*models.CaseSession, error) {
	query := `
	SELECT id, vehicle_id, channel, status, current_risk_level, initial_problem_title,
	       latest_user_message, final_summary, metadata, opened_at, closed_at, last_activity_at
	FROM case_sessions WHERE id = ?
	`

	var (
		cs             models.CaseSession
		metadata       string
		opened, active int64
		closed         sql.NullInt64
	)
	err := c.db.QueryRowContext(ctx, query, id).Scan(
		&cs.ID, &cs.VehicleID, &cs.Channel, &cs.Status, &cs.CurrentRiskLevel,
		&cs.InitialProblemTitle, &cs.LatestUserMessage, &cs.FinalSummary,
		&metadata, &opened, &closed, &active)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	if err := json.Unmarshal([]byte(metadata), &cs.Metadata); err != nil {
		cs.Metadata = map[string]interface{}{}
	}
	cs.OpenedAt = time.Unix(opened, 0)
	cs.LastActivityAt = time.Unix(active, 0)
	if closed.Valid {
		t := time.Unix(closed.Int64, 0)
		cs.ClosedAt = &t
	}
	return &cs, nil
}

// UpdateCase persists a case's mutable fields after a chat turn or an agent run.
func (c *Client) UpdateCase(ctx context.Context, cs *models.CaseSession) error {
	metadata, err := marshalMap(cs.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal case metadata: %w", err)
	}

	query := `
	UPDATE case_sessions SET
		status = ?, current_risk_level = ?, latest_user_message = ?,
		final_summary = ?, metadata = ?, closed_at = ?, last_activity_at = ?
	WHERE id = ?
	`
	res, err := c.db.ExecContext(ctx, query,
		cs.Status, cs.CurrentRiskLevel, cs.LatestUserMessage, cs.FinalSummary,
		metadata, nullableTime(cs.ClosedAt), cs.LastActivityAt.Unix(), cs.ID)
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (c *Client) InsertSymptom(ctx context.Context, s *models.SymptomReport) error {
	query := `
	INSERT INTO symptom_reports (id, case_id, source, raw_text, created_at)
	VALUES (?, ?, ?, ?, ?)
	`
	_, err := c.db.ExecContext(ctx, query, s.ID, s.CaseID, s.Source, s.RawText, s.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert symptom: %w", err)
	}
	return nil
}

// RecentSymptoms returns up to limit of the most recent reports for a case,
// oldest first, for prompt assembly. Timestamps have second resolution, so
// rowid breaks same-second ties in insertion order.
func (c *Client) RecentSymptoms(ctx context.Context, caseID string, limit int) ([]models.SymptomReport, error) {
	query := `
	SELECT id, case_id, source, raw_text, created_at FROM (
		SELECT rowid AS rid, id, case_id, source, raw_text, created_at
		FROM symptom_reports WHERE case_id = ?
		ORDER BY created_at DESC, rid DESC LIMIT ?
	) ORDER BY created_at ASC, rid ASC
	`

	rows, err := c.db.QueryContext(ctx, query, caseID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query symptoms: %w", err)
	}
	defer rows.Close()

	var out []models.SymptomReport
	for rows.Next() {
		var (
			s       models.SymptomReport
			created int64
		)
		if err := rows.Scan(&s.ID, &s.CaseID, &s.Source, &s.RawText, &created); err != nil {
			return nil, fmt.Errorf("failed to scan symptom: %w", err)
		}
		s.CreatedAt = time.Unix(created, 0)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *Client) InsertDiagnosis(ctx context.Context, d *models.DiagnosisResult) error {
	causes, _ := json.Marshal(orEmpty(d.LikelyCauses))
	actions, _ := json.Marshal(orEmpty(d.RecommendedActions))
	reasons, _ := json.Marshal(orEmpty(d.StopDrivingReasons))

	query := `
	INSERT INTO diagnosis_results
		(id, case_id, version, triage_level, confidence, likely_causes,
		 recommended_actions, stop_driving_reasons, model_name, latency_ms,
		 tokens_input, tokens_output, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.db.ExecContext(ctx, query,
		d.ID, d.CaseID, d.Version, d.TriageLevel, d.Confidence,
		string(causes), string(actions), string(reasons),
		d.ModelName, d.LatencyMS, d.TokensInput, d.TokensOutput, d.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert diagnosis: %w", err)
	}
	return nil
}

// LatestDiagnosis returns the highest-version diagnosis for a case, or
// ErrNotFound when none exists yet.
func (c *Client) LatestDiagnosis(ctx context.Context, caseID string) (*models.DiagnosisResult, error) {
	query := `
	SELECT id, case_id, version, triage_level, confidence, likely_causes,
	       recommended_actions, stop_driving_reasons, model_name, latency_ms,
	       tokens_input, tokens_output, created_at
	FROM diagnosis_results WHERE case_id = ? ORDER BY version DESC LIMIT 1
	`

	var (
		d                        models.DiagnosisResult
		causes, actions, reasons string
		created                  int64
	)
	err := c.db.QueryRowContext(ctx, query, caseID).Scan(
		&d.ID, &d.CaseID, &d.Version, &d.TriageLevel, &d.Confidence,
		&causes, &actions, &reasons, &d.ModelName, &d.LatencyMS,
		&d.TokensInput, &d.TokensOutput, &created)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest diagnosis: %w", err)
	}

	json.Unmarshal([]byte(causes), &d.LikelyCauses)
	json.Unmarshal([]byte(actions), &d.RecommendedActions)
	json.Unmarshal([]byte(reasons), &d.StopDrivingReasons)
	d.CreatedAt = time.Unix(created, 0)
	return &d, nil
}

func (c *Client) InsertCaseNote(ctx context.Context, n *models.CaseNote) error {
	tags, _ := json.Marshal(orEmpty(n.Tags))

	query := `
	INSERT INTO case_notes (id, case_id, source, note_text, tags, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := c.db.ExecContext(ctx, query, n.ID, n.CaseID, n.Source, n.NoteText, string(tags), n.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert case note: %w", err)
	}
	return nil
}

func (c *Client) ListCaseNotes(ctx context.Context, caseID string, limit int) ([]models.CaseNote, error) {
	query := `
	SELECT id, case_id, source, note_text, tags, created_at
	FROM case_notes WHERE case_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, caseID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query case notes: %w", err)
	}
	defer rows.Close()

	var out []models.CaseNote
	for rows.Next() {
		var (
			n       models.CaseNote
			tags    string
			created int64
		)
		if err := rows.Scan(&n.ID, &n.CaseID, &n.Source, &n.NoteText, &tags, &created); err != nil {
			return nil, fmt.Errorf("failed to scan case note: %w", err)
		}
		json.Unmarshal([]byte(tags), &n.Tags)
		n.CreatedAt = time.Unix(created, 0)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (c *Client) InsertCaseAction(ctx context.Context, a *models.CaseAction) error {
	input, err := marshalMap(a.InputPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal action input: %w", err)
	}
	output, err := marshalMap(a.OutputPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal action output: %w", err)
	}

	query := `
	INSERT INTO case_actions (id, case_id, action_type, status, reason, input_payload, output_payload, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = c.db.ExecContext(ctx, query,
		a.ID, a.CaseID, a.ActionType, a.Status, a.Reason, input, output, a.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert case action: %w", err)
	}
	return nil
}

func (c *Client) ListCaseActions(ctx context.Context, caseID string, limit int) ([]models.CaseAction, error) {
	query := `
	SELECT id, case_id, action_type, status, reason, input_payload, output_payload, created_at
	FROM case_actions WHERE case_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, caseID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query case actions: %w", err)
	}
	defer rows.Close()

	var out []models.CaseAction
	for rows.Next() {
		var (
			a             models.CaseAction
			input, output string
			created       int64
		)
		if err := rows.Scan(&a.ID, &a.CaseID, &a.ActionType, &a.Status, &a.Reason, &input, &output, &created); err != nil {
			return nil, fmt.Errorf("failed to scan case action: %w", err)
		}
		json.Unmarshal([]byte(input), &a.InputPayload)
		json.Unmarshal([]byte(output), &a.OutputPayload)
		a.CreatedAt = time.Unix(created, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}

func marshalMap(m map[string]interface{}) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
