package store

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "soapstone.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func sampleRecord() *Installation {
	return &Installation{
		ID:         "inst-1",
		Name:       "vanilla",
		VersionID:  "1.20.1",
		Type:       "release",
		Folder:     "vanilla",
		JavaMajor:  17,
		BinaryPath: "versions/1.20.1/1.20.1.jar",
		MainClass:  "net.minecraft.client.main.Main",
		AssetIndex: "5",
		JVMArgs:    []string{"-cp", "${classpath}"},
		GameArgs:   []string{"--username", "${auth_player_name}"},
		ClassPath:  []string{"libraries/a.jar", "versions/1.20.1/1.20.1.jar"},
	}
}

func TestCreateInstallingAndGet(t *testing.T) {
	s, _ := openTestStore(t)

	rec := sampleRecord()
	if err := s.CreateInstalling(rec); err != nil {
		t.Fatalf("CreateInstalling: %v", err)
	}
	if rec.State != StateInstalling {
		t.Errorf("state = %s after create", rec.State)
	}

	got, err := s.Get("inst-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateInstalling {
		t.Errorf("state = %s, want installing", got.State)
	}
	if !reflect.DeepEqual(got.GameArgs, rec.GameArgs) {
		t.Errorf("game args = %v", got.GameArgs)
	}
	if !reflect.DeepEqual(got.ClassPath, rec.ClassPath) {
		t.Errorf("class path = %v", got.ClassPath)
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	s, _ := openTestStore(t)

	if err := s.CreateInstalling(sampleRecord()); err != nil {
		t.Fatal(err)
	}

	dup := sampleRecord()
	dup.ID = "inst-2" // different id, same display name
	err := s.CreateInstalling(dup)
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestInstallingSurvivesReopen(t *testing.T) {
	s, path := openTestStore(t)

	if err := s.CreateInstalling(sampleRecord()); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash between the installing write and MarkReady: close
	// and reopen without transitioning.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get("inst-1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.State != StateInstalling {
		t.Errorf("state after reopen = %s, want installing (never implicit ready)", got.State)
	}
}

func TestMarkReady(t *testing.T) {
	s, _ := openTestStore(t)

	if err := s.CreateInstalling(sampleRecord()); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkReady("inst-1"); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}

	got, err := s.Get("inst-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateReady {
		t.Errorf("state = %s, want ready", got.State)
	}

	if err := s.MarkReady("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkReady(ghost) = %v, want ErrNotFound", err)
	}
}

func TestUnknownStateSentinel(t *testing.T) {
	s, _ := openTestStore(t)

	if err := s.CreateInstalling(sampleRecord()); err != nil {
		t.Fatal(err)
	}
	// A legacy/corrupt row: write a state no current version produces.
	if _, err := s.db.Exec(`UPDATE installations SET state = 'half-done' WHERE id = 'inst-1'`); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get("inst-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateUnknown {
		t.Errorf("state = %s, want unknown sentinel", got.State)
	}
}

func TestListAndDelete(t *testing.T) {
	s, _ := openTestStore(t)

	first := sampleRecord()
	if err := s.CreateInstalling(first); err != nil {
		t.Fatal(err)
	}
	second := sampleRecord()
	second.ID, second.Name, second.Folder = "inst-2", "modded", "modded"
	if err := s.CreateInstalling(second); err != nil {
		t.Fatal(err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List = %d records", len(list))
	}

	if err := s.Delete("inst-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("inst-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete("inst-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double Delete = %v, want ErrNotFound", err)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)

	if _, err := s.Account(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty Account = %v, want ErrNotFound", err)
	}

	acc := &Account{
		ID:         "acc-1",
		PlayerName: "steve",
		PlayerUUID: "069a79f4-44e9-4726-a5be-fca90e38aaf5",
		UserType:   "offline",
	}
	if err := s.SetAccount(acc); err != nil {
		t.Fatalf("SetAccount: %v", err)
	}

	got, err := s.Account()
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if got.PlayerName != "steve" {
		t.Errorf("player = %s", got.PlayerName)
	}

	// Upsert replaces in place.
	acc.PlayerName = "alex"
	if err := s.SetAccount(acc); err != nil {
		t.Fatal(err)
	}
	got, err = s.Account()
	if err != nil {
		t.Fatal(err)
	}
	if got.PlayerName != "alex" {
		t.Errorf("player after upsert = %s", got.PlayerName)
	}
}
