package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/annotation-sync/internal/notify"
	"github.com/example/annotation-sync/internal/translate"
	"github.com/example/annotation-sync/internal/transport"
	"github.com/example/annotation-sync/internal/types"
)

const track = types.TrackID("Annotations-chr1")

const initialFeatures = `{"features":[{"uniquename":"T","type":{"name":"mRNA","cv":{"name":"sequence"}},"location":{"fmin":100,"fmax":600,"strand":1},"children":[
	{"uniquename":"A","type":{"name":"exon","cv":{"name":"sequence"}},"location":{"fmin":100,"fmax":200,"strand":1}},
	{"uniquename":"B","type":{"name":"exon","cv":{"name":"sequence"}},"location":{"fmin":400,"fmax":600,"strand":1}}]},
	{"uniquename":"X","type":{"name":"mRNA","cv":{"name":"sequence"}},"location":{"fmin":900,"fmax":950,"strand":-1}}]}`

// annotationServer serves both annotation services. Polls are answered from
// the feed channel; a 403 status ends every later poll with the same status.
type annotationServer struct {
	feed chan scripted

	mu    sync.Mutex
	edits []string
	polls int
}

type scripted struct {
	status int
	body   string
}

func newAnnotationServer(t *testing.T) (*annotationServer, *httptest.Server) {
	t.Helper()
	s := &annotationServer{feed: make(chan scripted, 8)}
	mux := http.NewServeMux()
	mux.HandleFunc("/AnnotationEditorService", s.edit)
	mux.HandleFunc("/AnnotationChangeNotificationService", s.poll)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *annotationServer) edit(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var req struct {
		Operation string `json:"operation"`
	}
	_ = json.Unmarshal(raw, &req)

	s.mu.Lock()
	s.edits = append(s.edits, string(raw))
	s.mu.Unlock()

	if req.Operation == "get_features" {
		_, _ = io.WriteString(w, initialFeatures)
		return
	}
	_, _ = io.WriteString(w, "{}")
}

func (s *annotationServer) poll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.polls++
	s.mu.Unlock()

	select {
	case next := <-s.feed:
		w.WriteHeader(next.status)
		_, _ = io.WriteString(w, next.body)
	case <-r.Context().Done():
	}
}

func (s *annotationServer) editLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.edits...)
}

func (s *annotationServer) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func openSession(t *testing.T) (*Session, *annotationServer, *notify.Recorder, *Track) {
	t.Helper()
	server, srv := newAnnotationServer(t)
	rec := &notify.Recorder{}
	s, err := New(Config{BaseURL: srv.URL, PollTimeout: 5 * time.Second, EditTimeout: 5 * time.Second, HTTPClient: srv.Client()}, rec, nil, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(s.Close)

	tr, err := s.OpenTrack(context.Background(), track)
	if err != nil {
		t.Fatalf("open track: %v", err)
	}
	return s, server, rec, tr
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func records(t *testing.T, tr *Track, ids ...types.FeatureID) []translate.Record {
	t.Helper()
	out := make([]translate.Record, 0, len(ids))
	for _, id := range ids {
		f, ok := tr.Store.Get(id)
		if !ok {
			t.Fatalf("store missing %s", id)
		}
		out = append(out, translate.Record{Feature: f, Track: tr.ID})
	}
	return out
}

func TestOpenTrackLoadsFeatures(t *testing.T) {
	s, server, rec, tr := openSession(t)

	if tr.Store.Len() != 4 {
		t.Fatalf("expected 4 features, got %d", tr.Store.Len())
	}
	if parent, ok := tr.Store.Parent("A"); !ok || parent.ID != "T" {
		t.Fatalf("expected A under T, got %+v", parent)
	}
	if changed, _, _, _ := rec.Counts(); changed != 1 {
		t.Fatalf("expected one store change for the initial load, got %d", changed)
	}
	if log := server.editLog(); len(log) != 1 || log[0] != `{"track":"Annotations-chr1","features":[],"operation":"get_features"}` {
		t.Fatalf("unexpected initial requests %v", log)
	}
	waitFor(t, "listener live", func() bool { return s.ListenerState(track).Live() })
}

func TestMergeSelectionSendsExactRequest(t *testing.T) {
	s, server, _, tr := openSession(t)

	tr.Selection.Set(records(t, tr, "B", "A"))
	if _, err := s.Perform(context.Background(), track, translate.CmdMerge, tr.Selection.Input(track, nil), nil); err != nil {
		t.Fatalf("perform: %v", err)
	}
	log := server.editLog()
	want := `{"track":"Annotations-chr1","features":[{"uniquename":"A"},{"uniquename":"B"}],"operation":"merge_exons"}`
	if got := log[len(log)-1]; got != want {
		t.Fatalf("unexpected request\n got: %s\nwant: %s", got, want)
	}
	if !tr.Store.Contains("A") || !tr.Store.Contains("B") {
		t.Fatalf("dispatch must not change the store")
	}
}

func TestNoOperationIsReported(t *testing.T) {
	s, server, _, tr := openSession(t)
	before := len(server.editLog())

	_, err := s.Perform(context.Background(), track, translate.CmdSplit, translate.Input{Annotations: records(t, tr, "A", "B", "T")}, nil)
	if !errors.Is(err, ErrNoOperation) {
		t.Fatalf("expected ErrNoOperation, got %v", err)
	}
	if len(server.editLog()) != before {
		t.Fatalf("no request expected")
	}
	if _, err := s.Perform(context.Background(), "other", translate.CmdMerge, translate.Input{}, nil); !errors.Is(err, ErrTrackNotOpen) {
		t.Fatalf("expected ErrTrackNotOpen, got %v", err)
	}
}

func TestDeleteEventUpdatesStoreOnce(t *testing.T) {
	_, server, rec, tr := openSession(t)

	server.feed <- scripted{http.StatusOK, `[{"operation":"DELETE","features":[{"uniquename":"X"}]}]`}
	waitFor(t, "delete applied", func() bool { return !tr.Store.Contains("X") })
	waitFor(t, "store change", func() bool { changed, _, _, _ := rec.Counts(); return changed == 2 })

	if !tr.Store.Contains("T") {
		t.Fatalf("unrelated features must survive")
	}
}

func TestForbiddenFeedHidesTrackAndBlocksEdits(t *testing.T) {
	s, server, rec, tr := openSession(t)

	server.feed <- scripted{http.StatusForbidden, ""}
	select {
	case <-tr.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("listener did not stop")
	}

	if s.ListenerState(track) != types.FatallyFailed {
		t.Fatalf("expected fatally failed, got %s", s.ListenerState(track))
	}
	if _, _, _, hidden := rec.Counts(); hidden != 1 {
		t.Fatalf("expected track hidden")
	}
	if fatal := rec.FatalSnapshot(); len(fatal) != 1 || fatal[0] != string(track)+": Logged out" {
		t.Fatalf("unexpected fatal errors %v", fatal)
	}

	polls, edits := server.pollCount(), len(server.editLog())
	_, err := s.Perform(context.Background(), track, translate.CmdFlipStrand, translate.Input{Annotations: records(t, tr, "A")}, nil)
	if !errors.Is(err, transport.ErrStaleSession) {
		t.Fatalf("expected stale session, got %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if server.pollCount() != polls || len(server.editLog()) != edits {
		t.Fatalf("no further requests expected after a 403")
	}
}

func TestCloseTrack(t *testing.T) {
	s, _, _, _ := openSession(t)

	if err := s.CloseTrack(track); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.ListenerState(track) != types.Disconnected {
		t.Fatalf("closed track should report disconnected")
	}
	if err := s.CloseTrack(track); !errors.Is(err, ErrTrackNotOpen) {
		t.Fatalf("expected ErrTrackNotOpen, got %v", err)
	}
	if len(s.Tracks()) != 0 {
		t.Fatalf("expected no open tracks")
	}
}

func TestSelectBuildsRecordsFromStore(t *testing.T) {
	_, _, _, tr := openSession(t)

	recs, err := tr.Select("B", "T")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(recs) != 2 || recs[0].Parent == nil || recs[0].Parent.ID != "T" {
		t.Fatalf("B should carry its parent, got %+v", recs)
	}
	if recs[1].Parent != nil || len(recs[1].Subfeatures) != 2 {
		t.Fatalf("T should be top-level with two exons, got %+v", recs[1])
	}
	if got := tr.Selection.Records(); len(got) != 2 {
		t.Fatalf("selection not replaced, got %d records", len(got))
	}

	if _, err := tr.Select("missing"); !errors.Is(err, ErrFeatureNotFound) {
		t.Fatalf("expected ErrFeatureNotFound, got %v", err)
	}
	if got := tr.Selection.Records(); len(got) != 2 {
		t.Fatalf("failed select must keep the previous selection")
	}
}
