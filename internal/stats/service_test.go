package stats

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/stats/cache"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/textstats/frequency"
	apperrors "github.com/Adithya-Monish-Kumar-K/docstats/pkg/errors"
)

type fakeLibrary struct {
	owner       int64
	docs        map[int64]string
	collections map[int64][]int64
	foreign     map[int64]bool
}

func (f *fakeLibrary) Document(_ context.Context, ownerID, docID int64) (string, error) {
	text, ok := f.docs[docID]
	if !ok || ownerID != f.owner {
		return "", apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("document %d not found or no access", docID))
	}
	return text, nil
}

func (f *fakeLibrary) OtherDocuments(_ context.Context, ownerID, exceptID int64) ([]string, error) {
	var out []string
	for id := int64(1); id <= int64(len(f.docs)); id++ {
		if id != exceptID {
			out = append(out, f.docs[id])
		}
	}
	return out, nil
}

func (f *fakeLibrary) Corpus(_ context.Context, ownerID int64) ([]string, error) {
	if ownerID != f.owner {
		return nil, nil
	}
	var out []string
	for id := int64(1); id <= int64(len(f.docs)); id++ {
		if strings.TrimSpace(f.docs[id]) != "" {
			out = append(out, f.docs[id])
		}
	}
	return out, nil
}

func (f *fakeLibrary) Collection(_ context.Context, ownerID, collectionID int64) ([]string, error) {
	if f.foreign[collectionID] {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, "collection belongs to another user")
	}
	ids, ok := f.collections[collectionID]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "collection not found")
	}
	var out []string
	for _, id := range ids {
		if strings.TrimSpace(f.docs[id]) != "" {
			out = append(out, f.docs[id])
		}
	}
	return out, nil
}

type recorder struct {
	mu     sync.Mutex
	events []analytics.ComputationEvent
}

func (r *recorder) Track(e analytics.ComputationEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) last(t *testing.T) analytics.ComputationEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		t.Fatal("no events tracked")
	}
	return r.events[len(r.events)-1]
}

type mapBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *mapBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *mapBackend) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	return nil
}

func (m *mapBackend) FlushByPattern(context.Context, string) (int64, error) { return 0, nil }
func (m *mapBackend) CountByPattern(context.Context, string) (int64, error) { return 0, nil }

func newTestService(lib *fakeLibrary, opts Options) (*Service, *recorder) {
	rec := &recorder{}
	opts.Tracker = rec
	return New(lib, lib, opts), rec
}

func TestDocumentStatisticsSingleDocument(t *testing.T) {
	lib := &fakeLibrary{owner: 1, docs: map[int64]string{1: "cat cat dog"}}
	svc, rec := newTestService(lib, Options{})

	got, err := svc.DocumentStatistics(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("DocumentStatistics: %v", err)
	}
	if got.DocumentID != 1 || len(got.Statistics) != 2 {
		t.Fatalf("result = %+v", got)
	}
	dog, cat := got.Statistics[0], got.Statistics[1]
	if dog.Term != "dog" || dog.TF != 0.333333 || dog.IDF != 0 {
		t.Errorf("first = %+v, want dog tf=0.333333 idf=0", dog)
	}
	if cat.Term != "cat" || cat.TF != 0.666667 || cat.IDF != 0 {
		t.Errorf("second = %+v, want cat tf=0.666667 idf=0", cat)
	}

	ev := rec.last(t)
	if ev.Outcome != analytics.OutcomeOK || ev.CorpusDocs != 1 || ev.Terms != 2 {
		t.Errorf("event = %+v", ev)
	}
}

func TestDocumentStatisticsUsesOtherDocumentsForIDF(t *testing.T) {
	lib := &fakeLibrary{owner: 1, docs: map[int64]string{
		1: "cat dog",
		2: "cat",
	}}
	svc, _ := newTestService(lib, Options{})

	got, err := svc.DocumentStatistics(context.Background(), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	idf := map[string]float64{}
	for _, s := range got.Statistics {
		idf[s.Term] = s.IDF
	}
	if idf["cat"] != 0 || idf["dog"] != 0.693147 {
		t.Errorf("idf = %v, want cat=0 dog=ln(2)", idf)
	}
}

func TestDocumentStatisticsErrors(t *testing.T) {
	lib := &fakeLibrary{owner: 1, docs: map[int64]string{1: "a ! ?", 2: "words here"}}
	svc, rec := newTestService(lib, Options{})

	tests := []struct {
		name   string
		owner  int64
		doc    int64
		status int
		kind   string
	}{
		{"missing", 1, 99, http.StatusNotFound, "not_found"},
		{"other owner", 2, 2, http.StatusNotFound, "not_found"},
		{"no terms", 1, 1, http.StatusBadRequest, "empty_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.DocumentStatistics(context.Background(), tt.owner, tt.doc)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := apperrors.HTTPStatusCode(err); got != tt.status {
				t.Errorf("status = %d, want %d (%v)", got, tt.status, err)
			}
			ev := rec.last(t)
			if ev.Outcome != analytics.OutcomeError || ev.ErrorKind != tt.kind {
				t.Errorf("event = %+v", ev)
			}
		})
	}
}

func TestDocumentStatisticsLimit(t *testing.T) {
	var words []string
	for i := 0; i < 80; i++ {
		words = append(words, fmt.Sprintf("w%02d", i))
	}
	lib := &fakeLibrary{owner: 1, docs: map[int64]string{1: strings.Join(words, " ")}}

	svc, _ := newTestService(lib, Options{})
	got, err := svc.DocumentStatistics(context.Background(), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Statistics) != 50 {
		t.Errorf("default limit returned %d statistics", len(got.Statistics))
	}
	if got.Statistics[0].Term != "w00" {
		t.Errorf("equal tf should order by term, first = %s", got.Statistics[0].Term)
	}

	svc, _ = newTestService(lib, Options{Limit: 5})
	got, _ = svc.DocumentStatistics(context.Background(), 1, 1)
	if len(got.Statistics) != 5 {
		t.Errorf("limit 5 returned %d", len(got.Statistics))
	}
}

func TestCollectionStatistics(t *testing.T) {
	lib := &fakeLibrary{
		owner: 1,
		docs: map[int64]string{
			1: "the cat sat",
			2: "the dog ran",
			3: "   ",
		},
		collections: map[int64][]int64{10: {1}, 11: {3}},
		foreign:     map[int64]bool{12: true},
	}
	svc, rec := newTestService(lib, Options{})

	got, err := svc.CollectionStatistics(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("CollectionStatistics: %v", err)
	}
	if got.CollectionID != 10 || len(got.RareWords) != 3 {
		t.Fatalf("result = %+v", got)
	}
	for i := 1; i < len(got.RareWords); i++ {
		if got.RareWords[i-1].TF > got.RareWords[i].TF {
			t.Errorf("not ascending by tf: %+v", got.RareWords)
		}
	}
	if ev := rec.last(t); ev.CorpusDocs != 2 {
		t.Errorf("corpus docs = %d, want 2 (blank skipped)", ev.CorpusDocs)
	}

	tests := []struct {
		name       string
		owner      int64
		collection int64
		status     int
	}{
		{"blank collection", 1, 11, http.StatusBadRequest},
		{"missing", 1, 99, http.StatusNotFound},
		{"foreign", 1, 12, http.StatusForbidden},
		{"owner without documents", 7, 10, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CollectionStatistics(context.Background(), tt.owner, tt.collection)
			if got := apperrors.HTTPStatusCode(err); got != tt.status {
				t.Errorf("status = %d, want %d (%v)", got, tt.status, err)
			}
		})
	}
}

func TestHuffmanRoundTrip(t *testing.T) {
	lib := &fakeLibrary{owner: 1, docs: map[int64]string{
		1: "abracadabra, ünïcødé!",
		2: "aaaa",
		3: "",
	}}
	svc, rec := newTestService(lib, Options{})
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		enc, err := svc.HuffmanEncode(ctx, 1, id)
		if err != nil {
			t.Fatalf("encode %d: %v", id, err)
		}
		if enc.Bits != len(enc.EncodedText) || enc.OriginalBytes != len(lib.docs[id]) {
			t.Errorf("doc %d sizes = %+v", id, enc)
		}
		if enc.PackedBytes != (enc.Bits+7)/8 {
			t.Errorf("doc %d packed = %d for %d bits", id, enc.PackedBytes, enc.Bits)
		}
		dec, err := svc.HuffmanDecode(ctx, 1, enc.EncodedText, enc.CodeTable)
		if err != nil {
			t.Fatalf("decode %d: %v", id, err)
		}
		if dec.Text != lib.docs[id] {
			t.Errorf("round trip = %q, want %q", dec.Text, lib.docs[id])
		}
	}

	enc, _ := svc.HuffmanEncode(ctx, 1, 2)
	if enc.CodeTable["a"] != "0" || enc.EncodedText != "0000" {
		t.Errorf("single symbol = %+v", enc)
	}

	_, err := svc.HuffmanEncode(ctx, 1, 3)
	if !errors.Is(err, apperrors.ErrEmptyInput) {
		t.Errorf("empty document err = %v", err)
	}
	if ev := rec.last(t); ev.Type != analytics.EventHuffmanEncode || ev.ErrorKind != "empty_input" {
		t.Errorf("event = %+v", ev)
	}
}

func TestHuffmanDecodeErrors(t *testing.T) {
	svc, _ := newTestService(&fakeLibrary{}, Options{})
	table := map[string]string{"a": "0", "b": "10", "c": "11"}

	tests := []struct {
		name   string
		bits   string
		table  map[string]string
		status int
	}{
		{"truncated", "01", table, http.StatusUnprocessableEntity},
		{"bad symbol", "0x", table, http.StatusBadRequest},
		{"not prefix", "0", map[string]string{"a": "0", "b": "01"}, http.StatusBadRequest},
		{"multi-char key", "0", map[string]string{"ab": "0"}, http.StatusBadRequest},
		{"bits without table", "0", map[string]string{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.HuffmanDecode(context.Background(), 1, tt.bits, tt.table)
			if got := apperrors.HTTPStatusCode(err); got != tt.status {
				t.Errorf("status = %d, want %d (%v)", got, tt.status, err)
			}
		})
	}
}

func TestCachedResultsAreReported(t *testing.T) {
	lib := &fakeLibrary{owner: 1, docs: map[int64]string{1: "hello world hello"}}
	backend := &mapBackend{data: make(map[string]string)}
	svc, rec := newTestService(lib, Options{Cache: cache.New(backend, time.Minute, nil)})
	ctx := context.Background()

	first, err := svc.DocumentStatistics(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.DocumentStatistics(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if rec.last(t).Outcome != analytics.OutcomeCached {
		t.Errorf("second outcome = %s", rec.last(t).Outcome)
	}
	if len(first.Statistics) != len(second.Statistics) || first.Statistics[0] != second.Statistics[0] {
		t.Errorf("cached result differs: %+v vs %+v", first, second)
	}

	lib.docs[1] = "changed text entirely"
	third, _ := svc.DocumentStatistics(ctx, 1, 1)
	if rec.last(t).Outcome != analytics.OutcomeOK || third.Statistics[0].Term == first.Statistics[0].Term {
		t.Errorf("changed content should miss the cache: %+v", third)
	}
}

func TestNewKeepsConfiguredVectorizerFields(t *testing.T) {
	tests := []struct {
		name string
		in   frequency.VectorizerOptions
		want frequency.VectorizerOptions
	}{
		{"zero", frequency.VectorizerOptions{}, frequency.DefaultVectorizerOptions()},
		{
			"norm and sublinear without idf",
			frequency.VectorizerOptions{Norm: frequency.NormNone, SublinearTF: true},
			frequency.VectorizerOptions{IDF: frequency.IDFSmooth, Norm: frequency.NormNone, SublinearTF: true},
		},
		{
			"idf only",
			frequency.VectorizerOptions{IDF: frequency.IDFRaw},
			frequency.VectorizerOptions{IDF: frequency.IDFRaw, Norm: frequency.NormL2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(&fakeLibrary{owner: 1}, Options{Vectorizer: tt.in})
			if svc.vectorizer != tt.want {
				t.Errorf("vectorizer = %+v, want %+v", svc.vectorizer, tt.want)
			}
		})
	}
}
