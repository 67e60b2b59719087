package service

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/okian/biomatch/internal/domain/decision"
	"github.com/okian/biomatch/internal/domain/model"
	"github.com/okian/biomatch/internal/domain/scoring"
	"github.com/okian/biomatch/pkg/logger"
	"github.com/okian/biomatch/pkg/metrics"
)

// TemplateDecoder opens the encrypted templates of an identity.
type TemplateDecoder interface {
	DecodeEye(blob []byte) (model.EyeSignature, error)
	DecodeFingerprint(blob []byte) (model.FingerprintSignature, error)
}

// Matcher scans enrolled templates for the best fused score.
type Matcher struct {
	decoder    TemplateDecoder
	comparator scoring.Comparator
	policy     decision.Policy
	workers    int
	logger     logger.Logger
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithScanWorkers bounds how many goroutines share one scan.
func WithScanWorkers(n int) MatcherOption {
	return func(m *Matcher) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithMatchPolicy replaces the default decision policy.
func WithMatchPolicy(p decision.Policy) MatcherOption {
	return func(m *Matcher) {
		m.policy = p
	}
}

// WithComparator replaces the default signature comparator.
func WithComparator(c scoring.Comparator) MatcherOption {
	return func(m *Matcher) {
		if c != nil {
			m.comparator = c
		}
	}
}

// NewMatcher creates a Matcher over decoder.
func NewMatcher(decoder TemplateDecoder, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		decoder:    decoder,
		comparator: scoring.NewSignatureComparator(),
		policy:     decision.DefaultPolicy(),
		workers:    runtime.NumCPU(),
		logger:     logger.Get().Named("matcher"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the decision policy in use.
func (m *Matcher) Policy() decision.Policy {
	return m.policy
}

type candidate struct {
	id    int64
	eye   float64
	thumb float64
	total float64
	found bool
}

// better orders candidates by total, then by lowest identity id.
func better(a, b candidate) candidate {
	switch {
	case !a.found:
		return b
	case !b.found:
		return a
	case a.total > b.total:
		return a
	case b.total > a.total:
		return b
	case a.id <= b.id:
		return a
	default:
		return b
	}
}

// Match compares the captured signatures against every template and applies
// the decision policy to the best one. Templates that fail to decode are
// logged and skipped. An identity only becomes a candidate with a positive total.
func (m *Matcher) Match(ctx context.Context, eye model.EyeSignature, thumb model.FingerprintSignature, templates []model.Template, base float64) model.MatchResult {
	workers := m.workers
	if workers > len(templates) {
		workers = len(templates)
	}

	var skipped atomic.Int64
	partial := make([]candidate, workers)
	chunk := 0
	if workers > 0 {
		chunk = (len(templates) + workers - 1) / workers
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, len(templates))
		g.Go(func() error {
			var best candidate
			for i := lo; i < hi; i++ {
				if ctx.Err() != nil {
					break
				}
				c, err := m.score(eye, thumb, &templates[i])
				if err != nil {
					skipped.Add(1)
					metrics.RecordTemplateDecodeError()
					m.logger.Warn(ctx, "skipping undecodable template",
						logger.Int64("identity_id", templates[i].IdentityID),
						logger.Error(err))
					continue
				}
				if c.total > 0 {
					best = better(best, c)
				}
			}
			partial[w] = best
			return nil
		})
	}
	_ = g.Wait()

	var best candidate
	for _, c := range partial {
		best = better(best, c)
	}

	res := model.MatchResult{
		EyeScore:   best.eye,
		ThumbScore: best.thumb,
		Compared:   len(templates) - int(skipped.Load()),
		Skipped:    int(skipped.Load()),
	}
	metrics.RecordIdentitiesCompared(res.Compared)

	if err := ctx.Err(); err != nil {
		res.TotalScore = m.policy.Fuse(best.eye, best.thumb)
		res.Err = err
		res.Message = "verification cancelled"
		return res
	}

	v := m.policy.Decide(best.eye, best.thumb, base)
	res.TotalScore = v.Total
	if best.found {
		id := best.id
		res.BestIdentityID = &id
	}
	res.Matched = v.Matched && best.found
	if res.Matched {
		res.Confidence = v.Confidence
		res.Rule = v.Rule
		metrics.RecordMatchRule(v.Rule)
	} else {
		res.Message = MessageNoMatch
	}
	return res
}

func (m *Matcher) score(eye model.EyeSignature, thumb model.FingerprintSignature, t *model.Template) (candidate, error) {
	storedEye, err := m.decoder.DecodeEye(t.EyeTemplate)
	if err != nil {
		return candidate{}, err
	}
	storedThumb, err := m.decoder.DecodeFingerprint(t.ThumbTemplate)
	if err != nil {
		return candidate{}, err
	}
	c := candidate{
		id:    t.IdentityID,
		eye:   m.comparator.CompareEye(eye, storedEye),
		thumb: m.comparator.CompareFingerprint(thumb, storedThumb),
		found: true,
	}
	c.total = m.policy.Fuse(c.eye, c.thumb)
	return c, nil
}
