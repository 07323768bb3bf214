package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/autoaid/backend/internal/storage/models"
)

func insertTestVehicle(t *testing.T, c *Client, id string) {
	t.Helper()
	now := time.Now()
	v := &models.VehicleProfile{
		ID:           id,
		OwnerRef:     "owner-1",
		Make:         "Toyota",
		Model:        "Corolla",
		Year:         2019,
		Transmission: "automatic",
		FuelType:     "gasoline",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.InsertVehicle(context.Background(), v); err != nil {
		t.Fatalf("InsertVehicle: %v", err)
	}
}

func insertTestCase(t *testing.T, c *Client, id, vehicleID string) *models.CaseSession {
	t.Helper()
	now := time.Now()
	cs := &models.CaseSession{
		ID:               id,
		VehicleID:        vehicleID,
		Channel:          "api",
		Status:           models.CaseOpen,
		CurrentRiskLevel: models.RiskUnknown,
		Metadata:         map[string]interface{}{},
		OpenedAt:         now,
		LastActivityAt:   now,
	}
	if err := c.InsertCase(context.Background(), cs); err != nil {
		t.Fatalf("InsertCase: %v", err)
	}
	return cs
}

func TestVehicleRoundTrip(t *testing.T) {
	c := testClient(t)
	insertTestVehicle(t, c, "veh-1")

	got, err := c.GetVehicle(context.Background(), "veh-1")
	if err != nil {
		t.Fatalf("GetVehicle: %v", err)
	}
	if got.Make != "Toyota" || got.Model != "Corolla" || got.Year != 2019 {
		t.Errorf("got %+v", got)
	}

	if _, err := c.GetVehicle(context.Background(), "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing vehicle err = %v, want ErrNotFound", err)
	}
}

func TestListVehiclesFiltersByOwner(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	insertTestVehicle(t, c, "veh-1")
	other := &models.VehicleProfile{
		ID: "veh-2", OwnerRef: "owner-2", Make: "Honda", Model: "Civic", Year: 2021,
		Transmission: "manual", FuelType: "gasoline",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := c.InsertVehicle(ctx, other); err != nil {
		t.Fatalf("InsertVehicle: %v", err)
	}

	all, err := c.ListVehicles(ctx, "", 50)
	if err != nil {
		t.Fatalf("ListVehicles: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all vehicles = %d, want 2", len(all))
	}

	owned, err := c.ListVehicles(ctx, "owner-2", 50)
	if err != nil {
		t.Fatalf("ListVehicles owner-2: %v", err)
	}
	if len(owned) != 1 || owned[0].ID != "veh-2" {
		t.Errorf("owner-2 vehicles = %+v, want veh-2 only", owned)
	}
}

func TestCaseRoundTripAndMetadata(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	insertTestVehicle(t, c, "veh-1")
	insertTestCase(t, c, "case-1", "veh-1")

	got, err := c.GetCase(ctx, "case-1")
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.Status != models.CaseOpen || got.CurrentRiskLevel != models.RiskUnknown {
		t.Errorf("got %+v", got)
	}
	if got.Metadata == nil {
		t.Error("metadata should unmarshal to an empty map")
	}
	if got.ClosedAt != nil {
		t.Error("closed_at should be nil for open cases")
	}

	got.Status = models.CaseEscalated
	got.CurrentRiskLevel = models.RiskRed
	got.Metadata["asked_followup_rounds"] = 1
	closed := time.Now()
	got.ClosedAt = &closed
	if err := c.UpdateCase(ctx, got); err != nil {
		t.Fatalf("UpdateCase: %v", err)
	}

	updated, err := c.GetCase(ctx, "case-1")
	if err != nil {
		t.Fatalf("GetCase after update: %v", err)
	}
	if updated.Status != models.CaseEscalated || updated.CurrentRiskLevel != models.RiskRed {
		t.Errorf("updated case = %+v", updated)
	}
	if updated.ClosedAt == nil {
		t.Error("closed_at lost on update")
	}
	if v, ok := updated.Metadata["asked_followup_rounds"].(float64); !ok || v != 1 {
		t.Errorf("metadata rounds = %v", updated.Metadata["asked_followup_rounds"])
	}
}

func TestUpdateCaseNotFound(t *testing.T) {
	c := testClient(t)

	cs := &models.CaseSession{ID: "missing", LastActivityAt: time.Now()}
	if err := c.UpdateCase(context.Background(), cs); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRecentSymptomsReturnsLatestInOrder(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	insertTestVehicle(t, c, "veh-1")
	insertTestCase(t, c, "case-1", "veh-1")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		s := &models.SymptomReport{
			ID:        "sym-" + string(rune('a'+i)),
			CaseID:    "case-1",
			Source:    models.SymptomFromUser,
			RawText:   "report " + string(rune('a'+i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := c.InsertSymptom(ctx, s); err != nil {
			t.Fatalf("InsertSymptom: %v", err)
		}
	}

	got, err := c.RecentSymptoms(ctx, "case-1", 3)
	if err != nil {
		t.Fatalf("RecentSymptoms: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("symptoms = %d, want 3", len(got))
	}
	want := []string{"report c", "report d", "report e"}
	for i, s := range got {
		if s.RawText != want[i] {
			t.Errorf("symptom %d = %q, want %q", i, s.RawText, want[i])
		}
	}
}

func TestRecentSymptomsSameSecondKeepsInsertionOrder(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	insertTestVehicle(t, c, "veh-1")
	insertTestCase(t, c, "case-1", "veh-1")

	// A chat turn records the user symptom and the assistant reply within
	// the same second. IDs are chosen so that sorting by ID would reverse
	// them; insertion order must win.
	at := time.Now()
	reports := []*models.SymptomReport{
		{ID: "zz-first", CaseID: "case-1", Source: models.SymptomFromUser, RawText: "brakes squeal", CreatedAt: at},
		{ID: "aa-second", CaseID: "case-1", Source: models.SymptomFromAssistant, RawText: "likely worn pads", CreatedAt: at.Add(300 * time.Millisecond)},
	}
	for _, s := range reports {
		if err := c.InsertSymptom(ctx, s); err != nil {
			t.Fatalf("InsertSymptom: %v", err)
		}
	}

	got, err := c.RecentSymptoms(ctx, "case-1", 6)
	if err != nil {
		t.Fatalf("RecentSymptoms: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("symptoms = %d, want 2", len(got))
	}
	if got[0].ID != "zz-first" || got[1].ID != "aa-second" {
		t.Errorf("order = [%s %s], want [zz-first aa-second]", got[0].ID, got[1].ID)
	}
}

func TestDiagnosisVersioning(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	insertTestVehicle(t, c, "veh-1")
	insertTestCase(t, c, "case-1", "veh-1")

	if _, err := c.LatestDiagnosis(ctx, "case-1"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound before first diagnosis", err)
	}

	for v := 1; v <= 2; v++ {
		d := &models.DiagnosisResult{
			ID:           "diag-" + string(rune('0'+v)),
			CaseID:       "case-1",
			Version:      v,
			TriageLevel:  models.RiskYellow,
			Confidence:   0.6,
			LikelyCauses: []string{"worn brake pads"},
			ModelName:    "gpt-4o-mini",
			CreatedAt:    time.Now(),
		}
		if err := c.InsertDiagnosis(ctx, d); err != nil {
			t.Fatalf("InsertDiagnosis v%d: %v", v, err)
		}
	}

	latest, err := c.LatestDiagnosis(ctx, "case-1")
	if err != nil {
		t.Fatalf("LatestDiagnosis: %v", err)
	}
	if latest.Version != 2 {
		t.Errorf("version = %d, want 2", latest.Version)
	}
	if len(latest.LikelyCauses) != 1 || latest.LikelyCauses[0] != "worn brake pads" {
		t.Errorf("likely causes = %v", latest.LikelyCauses)
	}
	if latest.RecommendedActions == nil {
		t.Error("nil list should round-trip as empty, not nil")
	}
}

func TestDuplicateDiagnosisVersionRejected(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	insertTestVehicle(t, c, "veh-1")
	insertTestCase(t, c, "case-1", "veh-1")

	d := &models.DiagnosisResult{ID: "diag-1", CaseID: "case-1", Version: 1, CreatedAt: time.Now()}
	if err := c.InsertDiagnosis(ctx, d); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	d.ID = "diag-2"
	if err := c.InsertDiagnosis(ctx, d); err == nil {
		t.Error("expected unique constraint violation for duplicate version")
	}
}

func TestCaseNotesAndActions(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	insertTestVehicle(t, c, "veh-1")
	insertTestCase(t, c, "case-1", "veh-1")

	note := &models.CaseNote{
		ID:        "note-1",
		CaseID:    "case-1",
		Source:    "agent",
		NoteText:  "Assistant reply logged.",
		Tags:      []string{"assistant_reply", "auto_log"},
		CreatedAt: time.Now(),
	}
	if err := c.InsertCaseNote(ctx, note); err != nil {
		t.Fatalf("InsertCaseNote: %v", err)
	}

	action := &models.CaseAction{
		ID:         "act-1",
		CaseID:     "case-1",
		ActionType: models.ActionSaveNote,
		Status:     models.ActionExecuted,
		Reason:     "Saved assistant reply as agent note.",
		InputPayload: map[string]interface{}{
			"length": 24,
		},
		CreatedAt: time.Now(),
	}
	if err := c.InsertCaseAction(ctx, action); err != nil {
		t.Fatalf("InsertCaseAction: %v", err)
	}

	notes, err := c.ListCaseNotes(ctx, "case-1", 100)
	if err != nil {
		t.Fatalf("ListCaseNotes: %v", err)
	}
	if len(notes) != 1 || len(notes[0].Tags) != 2 {
		t.Errorf("notes = %+v", notes)
	}

	actions, err := c.ListCaseActions(ctx, "case-1", 100)
	if err != nil {
		t.Fatalf("ListCaseActions: %v", err)
	}
	if len(actions) != 1 || actions[0].ActionType != models.ActionSaveNote {
		t.Errorf("actions = %+v", actions)
	}
	if v, ok := actions[0].InputPayload["length"].(float64); !ok || v != 24 {
		t.Errorf("input payload = %v", actions[0].InputPayload)
	}
}

func TestDeleteCaseCascades(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	insertTestVehicle(t, c, "veh-1")
	insertTestCase(t, c, "case-1", "veh-1")

	s := &models.SymptomReport{
		ID: "sym-1", CaseID: "case-1", Source: models.SymptomFromUser,
		RawText: "brake noise", CreatedAt: time.Now(),
	}
	if err := c.InsertSymptom(ctx, s); err != nil {
		t.Fatalf("InsertSymptom: %v", err)
	}

	if _, err := c.db.ExecContext(ctx, "DELETE FROM vehicles WHERE id = ?", "veh-1"); err != nil {
		t.Fatalf("delete vehicle: %v", err)
	}

	if _, err := c.GetCase(ctx, "case-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("case should cascade away with its vehicle, err = %v", err)
	}
	symptoms, err := c.RecentSymptoms(ctx, "case-1", 10)
	if err != nil {
		t.Fatalf("RecentSymptoms: %v", err)
	}
	if len(symptoms) != 0 {
		t.Errorf("symptoms = %d, want 0 after cascade", len(symptoms))
	}
}
