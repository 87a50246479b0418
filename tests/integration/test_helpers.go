//go:build integration
// +build integration

package integration

import (
	"context"
	"testing"

	"github.com/tordrt/fieldlog/internal/changelog"
	"github.com/tordrt/fieldlog/internal/db"
	"github.com/tordrt/fieldlog/internal/schema"
)

// trackTitle derives the title log of origin and creates it through apply
func trackTitle(t *testing.T, ctx context.Context, origin *schema.Table, d db.Dialect, apply func(context.Context, []string) error) *changelog.Derivation {
	t.Helper()

	opts := changelog.DefaultOptions()
	opts.Log = []string{"title"}
	opts.CreatedBy = true

	derivation, err := changelog.Derive(&schema.Schema{Tables: []*schema.Table{origin}}, origin, opts)
	if err != nil {
		t.Fatalf("Failed to derive log tables: %v", err)
	}

	if err := apply(ctx, db.CreateTablesSQL(d, derivation.LogTables())); err != nil {
		t.Fatalf("Failed to create log tables: %v", err)
	}
	return derivation
}

// runTrackingScenario saves a record through four edits and checks the
// versions written for its title
func runTrackingScenario(t *testing.T, ctx context.Context, repo *db.Repository) {
	t.Helper()

	rec := repo.New(map[string]any{"title": "Initial"})
	saveRecord(t, ctx, repo, rec)
	verifyHistory(t, ctx, repo, rec, nil)

	rec.Set("title", "Teschd")
	if err := rec.Tracker().SetChangeBy("title", "alice"); err != nil {
		t.Fatalf("Failed to stage actor: %v", err)
	}
	saveRecord(t, ctx, repo, rec)
	verifyHistory(t, ctx, repo, rec, []string{"Initial"})

	reloaded, err := repo.Find(ctx, rec.FieldValue("id"))
	if err != nil {
		t.Fatalf("Failed to reload record: %v", err)
	}
	saveRecord(t, ctx, repo, reloaded)
	verifyHistory(t, ctx, repo, rec, []string{"Initial"})

	reloaded.Set("title", "Changed")
	saveRecord(t, ctx, repo, reloaded)
	history := verifyHistory(t, ctx, repo, rec, []string{"Initial", "Teschd"})

	if history[0].CreatedBy == nil || *history[0].CreatedBy != "alice" {
		t.Errorf("Expected first version by alice, got %v", history[0].CreatedBy)
	}
	if history[1].CreatedBy != nil {
		t.Errorf("Expected second version without actor, got %q", *history[1].CreatedBy)
	}

	if err := repo.Delete(ctx, reloaded); err != nil {
		t.Fatalf("Failed to delete record: %v", err)
	}
	verifyHistory(t, ctx, repo, rec, nil)
}

func saveRecord(t *testing.T, ctx context.Context, repo *db.Repository, rec *db.Record) {
	t.Helper()

	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}
}

// verifyHistory checks the logged values of title, oldest first, and that
// versions count up from 1
func verifyHistory(t *testing.T, ctx context.Context, repo *db.Repository, rec *db.Record, expected []string) []changelog.VersionRecord {
	t.Helper()

	history, err := repo.History(ctx, rec, "title")
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}

	if len(history) != len(expected) {
		t.Fatalf("Expected %d versions, got %d", len(expected), len(history))
	}
	for i, want := range expected {
		if history[i].Version != int64(i+1) {
			t.Errorf("Expected version %d, got %d", i+1, history[i].Version)
		}
		if history[i].Value != want {
			t.Errorf("Expected version %d to hold %q, got %v", i+1, want, history[i].Value)
		}
	}
	return history
}

// verifyLogTable checks the extracted shape of a log table
func verifyLogTable(t *testing.T, table *schema.Table, origin string, expectedPK []string) {
	t.Helper()

	verifyPrimaryKey(t, table, expectedPK)
	verifyColumns(t, table, []string{"title", "log_created_by"})
	verifyForeignKey(t, table, expectedPK[0], origin)
}

// verifyColumns checks that expected columns exist in a table
func verifyColumns(t *testing.T, table *schema.Table, expectedColumns []string) {
	t.Helper()

	for _, colName := range expectedColumns {
		if !table.HasColumn(colName) {
			t.Errorf("Expected column %s not found in %s table", colName, table.Name)
		}
	}
}

// verifyPrimaryKey checks that a table has the expected primary key
func verifyPrimaryKey(t *testing.T, table *schema.Table, expectedPK []string) {
	t.Helper()

	if len(table.PrimaryKey) != len(expectedPK) {
		t.Errorf("Expected primary key %v, got %v", expectedPK, table.PrimaryKey)
		return
	}

	for i, pk := range expectedPK {
		if table.PrimaryKey[i] != pk {
			t.Errorf("Expected primary key %v, got %v", expectedPK, table.PrimaryKey)
			return
		}
	}
}

// verifyForeignKey checks that a cascading foreign key from sourceColumn to
// targetTable exists
func verifyForeignKey(t *testing.T, table *schema.Table, sourceColumn, targetTable string) {
	t.Helper()

	for _, fk := range table.ForeignKeysReferencingTable(targetTable) {
		if len(fk.Columns) > 0 && fk.Columns[0] == sourceColumn {
			if fk.OnDelete != schema.ActionCascade {
				t.Errorf("Expected %s to cascade on delete, got %s", fk.Name, fk.OnDelete)
			}
			return
		}
	}

	t.Errorf("Expected foreign key from %s.%s to %s not found", table.Name, sourceColumn, targetTable)
}
