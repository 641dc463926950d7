package settings

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseTimes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{name: "single", input: "09:00", want: []string{"09:00"}},
		{name: "sorted and padded", input: "18:30, 9:5", want: []string{"09:05", "18:30"}},
		{name: "dedup", input: "09:00,09:00", want: []string{"09:00"}},
		{name: "hour out of range", input: "24:00", wantErr: true},
		{name: "minute out of range", input: "10:60", wantErr: true},
		{name: "missing colon", input: "0900", wantErr: true},
		{name: "empty", input: " , ", wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTimes(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseTimes(%q) expected error, got %v", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimes(%q) error = %v", tc.input, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseTimes(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseTopics(t *testing.T) {
	t.Parallel()
	got, err := ParseTopics(" AI news , , go releases ")
	if err != nil {
		t.Fatalf("ParseTopics() error = %v", err)
	}
	want := []string{"AI news", "go releases"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseTopics() = %v, want %v", got, want)
	}
	if _, err := ParseTopics("  ,  "); err == nil {
		t.Fatal("ParseTopics() expected error for blank input")
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.json")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if store.Current().AutoPostEnabled {
		t.Fatal("auto-posting should default to off")
	}

	err = store.Mutate(func(s *Settings) error {
		s.AutoPostEnabled = true
		s.Topics = []string{"kubernetes"}
		s.TopicCursor = 1
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore() reopen error = %v", err)
	}
	got := reopened.Current()
	if !got.AutoPostEnabled || got.TopicCursor != 1 {
		t.Fatalf("reopened settings = %+v", got)
	}
	if !reflect.DeepEqual(got.Topics, []string{"kubernetes"}) {
		t.Fatalf("reopened topics = %v", got.Topics)
	}
}

func TestMutateErrorLeavesStateUnchanged(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	boom := errors.New("boom")
	err = store.Mutate(func(s *Settings) error {
		s.AutoPostEnabled = true
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Mutate() error = %v, want boom", err)
	}
	if store.Current().AutoPostEnabled {
		t.Fatal("failed Mutate() changed state")
	}
}

func TestCurrentReturnsCopy(t *testing.T) {
	t.Parallel()
	store, err := NewStore(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	snap := store.Current()
	snap.Topics[0] = "mutated"
	if store.Current().Topics[0] == "mutated" {
		t.Fatal("Current() leaked internal slice")
	}
}
