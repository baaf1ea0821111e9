// Package stats computes per-document and per-collection TF/IDF rankings and
// Huffman encodings for an owner's documents. Text comes from the provider
// collaborators; everything after the reads is pure computation.
package stats

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/huffman"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/stats/cache"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/textstats/frequency"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/textstats/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/docstats/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/tracing"
)

// DocumentProvider resolves single documents for an owner.
type DocumentProvider interface {
	// Document returns the target text. It fails with NotFound when the
	// document is absent or owned by someone else.
	Document(ctx context.Context, ownerID, docID int64) (string, error)
	// OtherDocuments returns the readable texts of every other document the
	// owner has. Unreadable ones are skipped.
	OtherDocuments(ctx context.Context, ownerID, exceptID int64) ([]string, error)
}

// CorpusProvider resolves an owner's full library and collections.
type CorpusProvider interface {
	Corpus(ctx context.Context, ownerID int64) ([]string, error)
	Collection(ctx context.Context, ownerID, collectionID int64) ([]string, error)
}

type DocumentStatistics struct {
	DocumentID int64                 `json:"document_id"`
	Statistics []frequency.Statistic `json:"statistics"`
}

type CollectionStatistics struct {
	CollectionID int64                 `json:"collection_id"`
	RareWords    []frequency.Statistic `json:"rare_words"`
}

// HuffmanEncoding is the encoded document plus the table needed to reverse
// it. PackedBytes is the size of the bit string packed eight to a byte.
type HuffmanEncoding struct {
	EncodedText   string            `json:"encoded_text"`
	CodeTable     map[string]string `json:"code_table"`
	Bits          int               `json:"bits"`
	PackedBytes   int               `json:"packed_bytes"`
	OriginalBytes int               `json:"original_bytes"`
	Ratio         float64           `json:"ratio"`
}

type HuffmanDecoding struct {
	Text string `json:"text"`
}

// Options configures a Service. Zero values fall back to defaults; nil
// collaborators are replaced by no-ops.
type Options struct {
	Limit      int
	Vectorizer frequency.VectorizerOptions
	Cache      *cache.ResultCache
	Tracer     *tracing.Tracer
	Metrics    *metrics.Metrics
	Tracker    analytics.Tracker
}

type Service struct {
	docs       DocumentProvider
	corpus     CorpusProvider
	limit      int
	vectorizer frequency.VectorizerOptions
	cache      *cache.ResultCache
	tracer     *tracing.Tracer
	metrics    *metrics.Metrics
	tracker    analytics.Tracker
	logger     *slog.Logger
}

func New(docs DocumentProvider, corpus CorpusProvider, opts Options) *Service {
	if opts.Limit <= 0 {
		opts.Limit = ranker.DefaultLimit
	}
	opts.Vectorizer = opts.Vectorizer.WithDefaults()
	if opts.Cache == nil {
		opts.Cache = cache.New(nil, 0, opts.Metrics)
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.NewTracer(false, 0)
	}
	if opts.Tracker == nil {
		opts.Tracker = analytics.NopTracker{}
	}
	return &Service{
		docs:       docs,
		corpus:     corpus,
		limit:      opts.Limit,
		vectorizer: opts.Vectorizer,
		cache:      opts.Cache,
		tracer:     opts.Tracer,
		metrics:    opts.Metrics,
		tracker:    opts.Tracker,
		logger:     slog.Default().With("component", "stats-service"),
	}
}

// DocumentStatistics ranks the terms of one document by ascending TF, with
// IDF taken over the owner's other readable documents.
func (s *Service) DocumentStatistics(ctx context.Context, ownerID, docID int64) (*DocumentStatistics, error) {
	ev := analytics.ComputationEvent{
		Type:       analytics.EventDocumentStatistics,
		OwnerID:    ownerID,
		DocumentID: docID,
	}
	ctx, span, start := s.begin(ctx, ev.Type)
	span.SetAttr("document_id", docID)

	result, hit, err := s.documentStatistics(ctx, ownerID, docID, &ev)
	err = s.finish(ctx, span, start, &ev, hit, err)
	if err != nil {
		return nil, err
	}
	s.observeReturned(ev.Type, ev.Terms)
	return result, nil
}

func (s *Service) documentStatistics(ctx context.Context, ownerID, docID int64, ev *analytics.ComputationEvent) (*DocumentStatistics, bool, error) {
	loadCtx, load := tracing.StartChildSpan(ctx, "load")
	target, err := s.docs.Document(loadCtx, ownerID, docID)
	if err != nil {
		load.End()
		return nil, false, err
	}
	others, err := s.docs.OtherDocuments(loadCtx, ownerID, docID)
	load.SetAttr("others", len(others))
	load.End()
	if err != nil {
		return nil, false, err
	}
	ev.CorpusDocs = len(others) + 1
	ev.InputRunes = utf8.RuneCountInString(target)

	key := cache.Key(string(analytics.EventDocumentStatistics),
		append([]string{strconv.FormatInt(docID, 10), strconv.Itoa(s.limit), target}, others...)...)
	result, hit, err := cache.GetOrCompute(ctx, s.cache, key, func() (*DocumentStatistics, error) {
		_, analyze := tracing.StartChildSpan(ctx, "analyze")
		analysis, err := frequency.AnalyzeDocument(target, others)
		analyze.End()
		if err != nil {
			return nil, err
		}
		analyze.SetAttr("terms", len(analysis.Frequencies))

		_, rank := tracing.StartChildSpan(ctx, "rank")
		ranked := ranker.Round(ranker.Rank(analysis.Statistics(), s.limit))
		rank.End()
		return &DocumentStatistics{DocumentID: docID, Statistics: ranked}, nil
	})
	if err == nil {
		ev.Terms = len(result.Statistics)
	}
	return result, hit, err
}

// CollectionStatistics ranks the terms of a collection's merged text, with
// IDF fitted over the owner's whole library.
func (s *Service) CollectionStatistics(ctx context.Context, ownerID, collectionID int64) (*CollectionStatistics, error) {
	ev := analytics.ComputationEvent{
		Type:         analytics.EventCollectionStatistics,
		OwnerID:      ownerID,
		CollectionID: collectionID,
	}
	ctx, span, start := s.begin(ctx, ev.Type)
	span.SetAttr("collection_id", collectionID)

	result, hit, err := s.collectionStatistics(ctx, ownerID, collectionID, &ev)
	err = s.finish(ctx, span, start, &ev, hit, err)
	if err != nil {
		return nil, err
	}
	s.observeReturned(ev.Type, ev.Terms)
	return result, nil
}

func (s *Service) collectionStatistics(ctx context.Context, ownerID, collectionID int64, ev *analytics.ComputationEvent) (*CollectionStatistics, bool, error) {
	loadCtx, load := tracing.StartChildSpan(ctx, "load")
	members, err := s.corpus.Collection(loadCtx, ownerID, collectionID)
	if err != nil {
		load.End()
		return nil, false, err
	}
	corpus, err := s.corpus.Corpus(loadCtx, ownerID)
	load.SetAttr("corpus", len(corpus))
	load.SetAttr("members", len(members))
	load.End()
	if err != nil {
		return nil, false, err
	}
	ev.CorpusDocs = len(corpus)

	parts := []string{
		strconv.FormatInt(collectionID, 10),
		strconv.Itoa(s.limit),
		string(s.vectorizer.IDF),
		string(s.vectorizer.Norm),
		strconv.FormatBool(s.vectorizer.SublinearTF),
		strconv.Itoa(len(members)),
	}
	parts = append(parts, members...)
	parts = append(parts, corpus...)
	key := cache.Key(string(analytics.EventCollectionStatistics), parts...)

	result, hit, err := cache.GetOrCompute(ctx, s.cache, key, func() (*CollectionStatistics, error) {
		_, analyze := tracing.StartChildSpan(ctx, "analyze")
		stats, err := frequency.AnalyzeCollection(members, corpus, s.vectorizer)
		analyze.End()
		if err != nil {
			return nil, err
		}
		_, rank := tracing.StartChildSpan(ctx, "rank")
		ranked := ranker.Round(ranker.Rank(stats, s.limit))
		rank.End()
		return &CollectionStatistics{CollectionID: collectionID, RareWords: ranked}, nil
	})
	if err == nil {
		ev.Terms = len(result.RareWords)
	}
	return result, hit, err
}

// HuffmanEncode builds a Huffman code for one document's characters and
// returns the encoded bit string with its code table.
func (s *Service) HuffmanEncode(ctx context.Context, ownerID, docID int64) (*HuffmanEncoding, error) {
	ev := analytics.ComputationEvent{
		Type:       analytics.EventHuffmanEncode,
		OwnerID:    ownerID,
		DocumentID: docID,
	}
	ctx, span, start := s.begin(ctx, ev.Type)
	span.SetAttr("document_id", docID)

	result, hit, err := s.huffmanEncode(ctx, ownerID, docID, &ev)
	err = s.finish(ctx, span, start, &ev, hit, err)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil && result.OriginalBytes > 0 {
		s.metrics.CompressionRatio.Observe(result.Ratio)
	}
	return result, nil
}

func (s *Service) huffmanEncode(ctx context.Context, ownerID, docID int64, ev *analytics.ComputationEvent) (*HuffmanEncoding, bool, error) {
	loadCtx, load := tracing.StartChildSpan(ctx, "load")
	text, err := s.docs.Document(loadCtx, ownerID, docID)
	load.End()
	if err != nil {
		return nil, false, err
	}
	if text == "" {
		return nil, false, apperrors.Wrapf(apperrors.ErrEmptyInput, "document %d is empty", docID)
	}
	ev.InputRunes = utf8.RuneCountInString(text)

	key := cache.Key(string(analytics.EventHuffmanEncode), text)
	result, hit, err := cache.GetOrCompute(ctx, s.cache, key, func() (*HuffmanEncoding, error) {
		_, build := tracing.StartChildSpan(ctx, "build_tree")
		root := huffman.BuildTree(text)
		table := huffman.DeriveCodes(root)
		build.SetAttr("symbols", len(table))
		build.End()

		_, encode := tracing.StartChildSpan(ctx, "encode")
		bits, err := huffman.Encode(text, table)
		encode.End()
		if err != nil {
			return nil, err
		}
		packed, err := huffman.Pack(bits)
		if err != nil {
			return nil, err
		}
		return &HuffmanEncoding{
			EncodedText:   bits,
			CodeTable:     table.Strings(),
			Bits:          len(bits),
			PackedBytes:   len(packed),
			OriginalBytes: len(text),
			Ratio:         ranker.Round6(float64(len(packed)) / float64(len(text))),
		}, nil
	})
	if err == nil {
		ev.EncodedBits = result.Bits
		ev.Ratio = result.Ratio
	}
	return result, hit, err
}

// HuffmanDecode reverses HuffmanEncode using only the transported code
// table.
func (s *Service) HuffmanDecode(ctx context.Context, ownerID int64, encoded string, codeTable map[string]string) (*HuffmanDecoding, error) {
	ev := analytics.ComputationEvent{Type: analytics.EventHuffmanDecode, OwnerID: ownerID}
	ctx, span, start := s.begin(ctx, ev.Type)
	span.SetAttr("bits", len(encoded))

	var result *HuffmanDecoding
	err := func() error {
		table, err := huffman.ParseCodeTable(codeTable)
		if err != nil {
			return err
		}
		root, err := huffman.TreeFromCodes(table)
		if err != nil {
			return err
		}
		text, err := huffman.Decode(encoded, root)
		if err != nil {
			return err
		}
		result = &HuffmanDecoding{Text: text}
		return nil
	}()
	ev.EncodedBits = len(encoded)
	err = s.finish(ctx, span, start, &ev, false, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) begin(ctx context.Context, op analytics.EventType) (context.Context, *tracing.Span, time.Time) {
	ctx, span := s.tracer.Start(ctx, string(op), middleware.GetRequestID(ctx))
	return ctx, span, time.Now()
}

// finish maps err onto the service's error taxonomy, then records metrics,
// the trace and an analytics event for the operation.
func (s *Service) finish(ctx context.Context, span *tracing.Span, start time.Time, ev *analytics.ComputationEvent, hit bool, err error) error {
	err = translate(err)
	elapsed := time.Since(start)

	ev.Outcome = analytics.OutcomeOK
	switch {
	case err != nil:
		ev.Outcome = analytics.OutcomeError
		ev.ErrorKind = apperrors.Kind(err)
		span.SetAttr("error", ev.ErrorKind)
	case hit:
		ev.Outcome = analytics.OutcomeCached
	}
	span.SetAttr("outcome", string(ev.Outcome))
	s.tracer.Finish(span)

	if s.metrics != nil {
		s.metrics.ComputationsTotal.WithLabelValues(string(ev.Type), string(ev.Outcome)).Inc()
		s.metrics.ComputationLatency.WithLabelValues(string(ev.Type)).Observe(elapsed.Seconds())
	}

	ev.LatencyMs = elapsed.Milliseconds()
	ev.Timestamp = time.Now().UTC()
	ev.RequestID = middleware.GetRequestID(ctx)
	defer s.tracker.Track(*ev)

	log := logger.FromContext(ctx).With("component", "stats-service", "operation", ev.Type)
	if err != nil {
		if apperrors.HTTPStatusCode(err) >= 500 {
			log.Error("computation failed", "error", err, "latency_ms", ev.LatencyMs)
		} else {
			log.Debug("computation rejected", "error", err)
		}
		return err
	}
	log.Debug("computation finished", "outcome", ev.Outcome, "latency_ms", ev.LatencyMs)
	return nil
}

func (s *Service) observeReturned(op analytics.EventType, n int) {
	if s.metrics != nil {
		s.metrics.StatisticsReturned.WithLabelValues(string(op)).Observe(float64(n))
	}
}

// translate converts core and context errors into AppErrors. Errors that
// already carry a status pass through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, frequency.ErrEmptyDocument),
		errors.Is(err, frequency.ErrEmptyCorpus),
		errors.Is(err, frequency.ErrEmptyCollection),
		errors.Is(err, frequency.ErrEmptyVocabulary):
		return apperrors.Wrap(apperrors.ErrEmptyInput, err.Error())
	case errors.Is(err, huffman.ErrUnknownCharacter):
		return apperrors.Wrap(apperrors.ErrUnknownCharacter, err.Error())
	case errors.Is(err, huffman.ErrTruncatedStream),
		errors.Is(err, huffman.ErrNoSuchCode):
		return apperrors.Wrap(apperrors.ErrTruncatedStream, err.Error())
	case errors.Is(err, huffman.ErrInvalidBit),
		errors.Is(err, huffman.ErrInvalidTable),
		errors.Is(err, huffman.ErrNotPrefixCode),
		errors.Is(err, huffman.ErrEmptyTree):
		return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	case errors.Is(err, apperrors.ErrUnreadable):
		return apperrors.Wrap(apperrors.ErrUnreadable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.ErrTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(apperrors.ErrTimeout, "request canceled")
	}
	return apperrors.Wrap(apperrors.ErrInternal, err.Error())
}
