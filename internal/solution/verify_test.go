package solution

import (
	"strings"
	"testing"
)

func TestVerifyDetectsBrokenInvariants(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(t *testing.T, f *fixture, p *Project)
		want    string
	}{
		{
			name: "out of order",
			corrupt: func(t *testing.T, f *fixture, p *Project) {
				p.entries[0], p.entries[1] = p.entries[1], p.entries[0]
			},
			want: "not strictly ordered",
		},
		{
			name: "stale parent link",
			corrupt: func(t *testing.T, f *fixture, p *Project) {
				f.file(t, "P/a.cs").parentID = "nowhere"
			},
			want: "parent link",
		},
		{
			name: "missing from registry",
			corrupt: func(t *testing.T, f *fixture, p *Project) {
				delete(f.sol.reg.files, f.ws.Path("P/a.cs"))
			},
			want: "missing from registry",
		},
		{
			name: "orphan in registry",
			corrupt: func(t *testing.T, f *fixture, p *Project) {
				orphan := &File{sol: f.sol, id: newID(), name: "x.cs", path: f.ws.Path("P/x.cs"), parentID: p.id}
				f.sol.reg.addFile(orphan)
			},
			want: "not in the tree",
		},
		{
			name: "wrong path",
			corrupt: func(t *testing.T, f *fixture, p *Project) {
				f.folder(t, "P/Utils").path = f.ws.Path("Elsewhere/Utils")
			},
			want: "does not match parent path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.addProject(t, "P", map[string]string{"a.cs": "", "Utils/u.cs": ""})
			assertConsistent(t, f.sol)

			tt.corrupt(t, f, p)
			violations := f.sol.Verify()
			if len(violations) == 0 {
				t.Fatal("Verify() found nothing")
			}
			var found bool
			for _, v := range violations {
				if strings.Contains(v.Message, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("Verify() = %v, want a violation containing %q", violations, tt.want)
			}
		})
	}
}

func TestFileSuppressionAndIdeWrite(t *testing.T) {
	f := newFixture(t)
	f.addProject(t, "P", map[string]string{"a.cs": ""})
	a := f.file(t, "P/a.cs")

	if _, ok := a.LastIdeWrite(); ok {
		t.Error("fresh file should have no IDE write")
	}
	release1 := a.Suppress()
	release2 := a.Suppress()
	release1()
	release1()
	if !a.IsSuppressed() {
		t.Error("file should stay suppressed until every guard is released")
	}
	release2()
	if a.IsSuppressed() {
		t.Error("file should no longer be suppressed")
	}

	a.SetDirty(true)
	if !a.IsDirty() {
		t.Error("SetDirty(true) should mark the file dirty")
	}
}
