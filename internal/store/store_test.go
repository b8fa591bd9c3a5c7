package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func openSQL(t *testing.T) Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "bernet.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, openSQL(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemStore()) })
}

var ignoreStamps = cmpopts.IgnoreFields(Model{}, "ID", "CreatedAt", "UpdatedAt")

func TestStore_Models(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		alex := &Model{
			Name:       "alexnet",
			DataURL:    "http://example.test/alexnet.bin",
			DataSHA256: "ab",
			Layers:     23,
			Params:     60965224,
			Source:     []byte("name: alexnet\n"),
		}
		lenet := &Model{Name: "lenet", Layers: 7, Params: 431080, Source: []byte("name: lenet\n")}
		for _, m := range []*Model{lenet, alex} {
			if err := s.SaveModel(m); err != nil {
				t.Fatalf("SaveModel(%s): %v", m.Name, err)
			}
		}

		got, err := s.GetModel("alexnet")
		if err != nil {
			t.Fatalf("GetModel: %v", err)
		}
		if diff := cmp.Diff(alex, got, ignoreStamps); diff != "" {
			t.Errorf("GetModel (-want +got):\n%s", diff)
		}
		if got.CreatedAt == "" || got.ID == 0 {
			t.Errorf("missing stamps: %+v", got)
		}

		list, err := s.ListModels()
		if err != nil {
			t.Fatalf("ListModels: %v", err)
		}
		if len(list) != 2 || list[0].Name != "alexnet" || list[1].Name != "lenet" {
			t.Errorf("ListModels order: %+v", list)
		}

		missing, err := s.GetModel("vgg")
		if err != nil || missing != nil {
			t.Errorf("GetModel(missing) = %+v, %v", missing, err)
		}
	})
}

func TestStore_SaveModelReplaces(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		if err := s.SaveModel(&Model{Name: "net", Layers: 1, Source: []byte("v1")}); err != nil {
			t.Fatal(err)
		}
		first, _ := s.GetModel("net")

		if err := s.SaveModel(&Model{Name: "net", Description: "second", Layers: 2, Source: []byte("v2")}); err != nil {
			t.Fatal(err)
		}
		second, _ := s.GetModel("net")
		if second.ID != first.ID || second.CreatedAt != first.CreatedAt {
			t.Errorf("identity changed: %+v -> %+v", first, second)
		}
		if second.Layers != 2 || second.Description != "second" || string(second.Source) != "v2" {
			t.Errorf("not replaced: %+v", second)
		}
		list, _ := s.ListModels()
		if len(list) != 1 {
			t.Errorf("want 1 model, got %d", len(list))
		}
	})
}

func TestStore_DeleteModel(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		if err := s.SaveModel(&Model{Name: "net", Source: []byte("x")}); err != nil {
			t.Fatal(err)
		}
		if err := s.DeleteModel("net"); err != nil {
			t.Fatalf("DeleteModel: %v", err)
		}
		if m, _ := s.GetModel("net"); m != nil {
			t.Errorf("model still present: %+v", m)
		}
		if err := s.DeleteModel("net"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second delete: want ErrNotFound, got %v", err)
		}
	})
}

func TestStore_SaveModelRequiresName(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		if err := s.SaveModel(&Model{}); err == nil {
			t.Error("expected error for unnamed model")
		}
	})
}

func TestStore_Fetches(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		if f, err := s.LastFetch("aa"); err != nil || f != nil {
			t.Fatalf("LastFetch(empty) = %+v, %v", f, err)
		}
		for _, f := range []*Fetch{
			{URL: "http://a/w.bin", SHA256: "aa", Path: "/c/aa/w.bin", Size: 10, VerifiedAt: "2026-01-01T00:00:00Z"},
			{URL: "http://b/x.bin", SHA256: "bb", Path: "/c/bb/x.bin", Size: 20},
			{URL: "file:///mirror/w.bin", SHA256: "aa", Path: "/c/aa/w.bin", Size: 10, VerifiedAt: "2026-02-01T00:00:00Z"},
		} {
			if _, err := s.RecordFetch(f); err != nil {
				t.Fatalf("RecordFetch: %v", err)
			}
		}

		got, err := s.LastFetch("aa")
		if err != nil {
			t.Fatalf("LastFetch: %v", err)
		}
		want := &Fetch{URL: "file:///mirror/w.bin", SHA256: "aa", Path: "/c/aa/w.bin", Size: 10, VerifiedAt: "2026-02-01T00:00:00Z"}
		if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Fetch{}, "ID")); diff != "" {
			t.Errorf("LastFetch (-want +got):\n%s", diff)
		}

		bb, _ := s.LastFetch("bb")
		if bb == nil || bb.VerifiedAt == "" {
			t.Errorf("VerifiedAt not stamped: %+v", bb)
		}
	})
}

func TestOpen_MigratesV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(schemaV1); err != nil {
		t.Fatalf("create v1: %v", err)
	}
	if _, err := db.Exec("INSERT INTO schema_version(version) VALUES(1)"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(
		`INSERT INTO models(name, layers, params, source, created_at, updated_at)
		 VALUES('old', 3, 30, 'name: old', '2025-01-01T00:00:00Z', '2025-01-01T00:00:00Z')`,
	); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var v int
	if err := s.db.QueryRow("SELECT version FROM schema_version").Scan(&v); err != nil || v != schemaVersionV2 {
		t.Errorf("schema version = %d, %v", v, err)
	}
	if m, err := s.GetModel("old"); err != nil || m == nil || m.Layers != 3 {
		t.Errorf("v1 model lost: %+v, %v", m, err)
	}
	if _, err := s.RecordFetch(&Fetch{URL: "u", SHA256: "s", Path: "p"}); err != nil {
		t.Errorf("fetch log unusable after migration: %v", err)
	}

	// Reopening an up-to-date database is a no-op.
	_ = s.Close()
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = s2.Close()
}
