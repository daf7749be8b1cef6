package remote

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/gorilla/mux"
)

// Family is one spelling of the notes API: where the collection lives and
// what the sub-note path parameters are called. Families never differ in
// semantics.
type Family struct {
	Name       string
	Notes      string
	NoteVar    string
	SubNoteVar string
}

func (f Family) noteItem() string {
	return fmt.Sprintf("%s/{%s}", f.Notes, f.NoteVar)
}

func (f Family) subNotes() string {
	return fmt.Sprintf("%s/{%s}/subnotes", f.Notes, f.NoteVar)
}

func (f Family) subNoteItem() string {
	return fmt.Sprintf("%s/{%s}/subnotes/{%s}", f.Notes, f.NoteVar, f.SubNoteVar)
}

// DefaultFamilies is the fixed order used when no hint is known.
var DefaultFamilies = []Family{
	{Name: "notes-noteId", Notes: "/notes", NoteVar: "noteId", SubNoteVar: "subNoteId"},
	{Name: "api-noteId", Notes: "/api/notes", NoteVar: "noteId", SubNoteVar: "subNoteId"},
	{Name: "notes-id", Notes: "/notes", NoteVar: "id", SubNoteVar: "subNoteId"},
	{Name: "api-id", Notes: "/api/notes", NoteVar: "id", SubNoteVar: "subNoteId"},
}

type routeKind string

const (
	routeNotes       routeKind = "notes"
	routeNote        routeKind = "note"
	routeSubNotes    routeKind = "subnotes"
	routeSubNoteItem routeKind = "subnote"
)

type candidate struct {
	family string
	path   string
}

// Routes renders candidate URLs from named mux routes and keeps the
// preferred ordering: hinted family, then last success, then defaults.
type Routes struct {
	mu        sync.RWMutex
	router    *mux.Router
	families  []Family
	hint      string
	preferred string
}

func NewRoutes(families ...Family) *Routes {
	if len(families) == 0 {
		families = DefaultFamilies
	}
	r := &Routes{router: mux.NewRouter()}
	for _, f := range families {
		r.registerLocked(f)
	}
	return r
}

func (r *Routes) registerLocked(f Family) {
	for _, fam := range r.families {
		if fam.Name == f.Name {
			return
		}
	}
	r.families = append(r.families, f)
	r.router.Path(f.Notes).Name(routeName(f.Name, routeNotes))
	r.router.Path(f.noteItem()).Name(routeName(f.Name, routeNote))
	r.router.Path(f.subNotes()).Name(routeName(f.Name, routeSubNotes))
	r.router.Path(f.subNoteItem()).Name(routeName(f.Name, routeSubNoteItem))
}

func routeName(family string, kind routeKind) string {
	return family + ":" + string(kind)
}

var expressParam = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)
var muxParam = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Hint installs the family described by a sub-notes collection template as
// advertised by the health endpoint, e.g. "/api/notes/:noteId/subnotes".
// itemTemplate may be empty; the sub-note parameter then defaults to
// "subNoteId".
func (r *Routes) Hint(collectionTemplate, itemTemplate string) error {
	f, err := familyFromTemplate(collectionTemplate, itemTemplate)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, fam := range r.families {
		if fam.Notes == f.Notes && fam.NoteVar == f.NoteVar && fam.SubNoteVar == f.SubNoteVar {
			r.hint = fam.Name
			return nil
		}
	}
	r.registerLocked(f)
	r.hint = f.Name
	return nil
}

func familyFromTemplate(collection, item string) (Family, error) {
	collection = expressParam.ReplaceAllString(strings.TrimSpace(collection), "{$1}")
	collection = strings.TrimRight(collection, "/")
	if !strings.HasSuffix(collection, "/subnotes") {
		return Family{}, fmt.Errorf("route hint %q does not end in /subnotes", collection)
	}
	prefix := strings.TrimSuffix(collection, "/subnotes")
	m := muxParam.FindStringSubmatchIndex(prefix)
	if m == nil || m[1] != len(prefix) {
		return Family{}, fmt.Errorf("route hint %q has no note parameter", collection)
	}
	noteVar := prefix[m[2]:m[3]]
	notes := strings.TrimRight(prefix[:m[0]], "/")
	if notes == "" {
		return Family{}, fmt.Errorf("route hint %q has no collection path", collection)
	}

	subVar := "subNoteId"
	if item != "" {
		item = expressParam.ReplaceAllString(strings.TrimSpace(item), "{$1}")
		vars := muxParam.FindAllStringSubmatch(item, -1)
		if len(vars) >= 2 {
			subVar = vars[len(vars)-1][1]
		}
	}
	return Family{
		Name:       "hint:" + notes + "/" + noteVar + "/" + subVar,
		Notes:      notes,
		NoteVar:    noteVar,
		SubNoteVar: subVar,
	}, nil
}

// Prefer moves family to the front for subsequent calls.
func (r *Routes) Prefer(family string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preferred = family
}

func (r *Routes) Order() []Family {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Family, 0, len(r.families))
	seen := make(map[string]bool)
	push := func(name string) {
		if name == "" || seen[name] {
			return
		}
		for _, f := range r.families {
			if f.Name == name {
				out = append(out, f)
				seen[name] = true
				return
			}
		}
	}
	push(r.hint)
	push(r.preferred)
	for _, f := range r.families {
		push(f.Name)
	}
	return out
}

// candidates renders the route kind for every family in order, dropping
// families whose rendered path equals one already listed: the same URL is
// the same request.
func (r *Routes) candidates(kind routeKind, noteID, subNoteID string) ([]candidate, error) {
	families := r.Order()

	var out []candidate
	seen := make(map[string]bool)
	var lastErr error
	for _, f := range families {
		route := r.router.Get(routeName(f.Name, kind))
		if route == nil {
			continue
		}
		var pairs []string
		switch kind {
		case routeNote:
			pairs = []string{f.NoteVar, noteID}
		case routeSubNotes:
			pairs = []string{f.NoteVar, noteID}
		case routeSubNoteItem:
			pairs = []string{f.NoteVar, noteID, f.SubNoteVar, subNoteID}
		}
		u, err := route.URLPath(pairs...)
		if err != nil {
			lastErr = err
			continue
		}
		if seen[u.Path] {
			continue
		}
		seen[u.Path] = true
		out = append(out, candidate{family: f.Name, path: u.Path})
	}
	if len(out) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no route registered for %s", kind)
		}
		return nil, lastErr
	}
	return out, nil
}
