package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.cluttr.dev/formula/internal/metaerr"
)

// Resolver answers questions about many formulae at once, e.g. what their
// archives actually hash to or whether upstream has released a newer
// version.
type Resolver struct {
	Client      *http.Client
	Fetcher     *Fetcher
	Concurrency int
}

// VersionStatus compares a formula's version with the newest upstream one.
type VersionStatus struct {
	Name     string
	Current  string
	Latest   string
	Outdated bool
}

// Lock fetches the archive of every formula and records its observed
// digest.
func (r *Resolver) Lock(ctx context.Context, formulae []*Formula) (Lock, error) {
	locked, err := resolveAll(ctx, formulae, r.concurrency(), r.lock)
	if err != nil {
		return Lock{}, err
	}
	sort.SliceStable(locked, func(i, j int) bool {
		return locked[i].Name < locked[j].Name
	})

	digest, err := r.hash(locked)
	if err != nil {
		return Lock{}, err
	}

	return Lock{
		Generated: time.Now().UTC(),
		Digest:    digest,
		Formulae:  locked,
	}, nil
}

func (r *Resolver) lock(ctx context.Context, f *Formula) (LockedFormula, error) {
	path, err := r.Fetcher.Fetch(ctx, f.URL, f.SHA256)
	if err != nil {
		return LockedFormula{}, err
	}
	sum, size, err := FileDigest(path)
	if err != nil {
		return LockedFormula{}, fmt.Errorf("hash archive: %w", err)
	}
	if !strings.EqualFold(sum, f.SHA256) {
		slog.Warn("archive checksum differs from formula", "name", f.Name, "expected", f.SHA256, "actual", sum)
	}
	return LockedFormula{
		Name:    f.Name,
		Version: f.Version,
		URL:     f.URL,
		SHA256:  sum,
		Size:    size,
	}, nil
}

// Outdated checks every formula against its livecheck.
func (r *Resolver) Outdated(ctx context.Context, formulae []*Formula) ([]VersionStatus, error) {
	return resolveAll(ctx, formulae, r.concurrency(), r.outdated)
}

func (r *Resolver) outdated(ctx context.Context, f *Formula) (VersionStatus, error) {
	spec, err := resolveLivecheck(f)
	if err != nil {
		return VersionStatus{}, err
	}

	client := r.Client
	if client == nil {
		client = defaultClient()
	}
	latest, err := ResolveVersion(ctx, client, spec)
	if err != nil {
		return VersionStatus{}, metaerr.WithMetadata(fmt.Errorf("resolve version: %w", err), "url", spec.URL)
	}

	newer, err := IsNewer(f.Version, latest, spec.Prefix)
	if err != nil {
		return VersionStatus{}, err
	}
	return VersionStatus{
		Name:     f.Name,
		Current:  f.Version,
		Latest:   latest,
		Outdated: newer,
	}, nil
}

func (r *Resolver) concurrency() int {
	if r.Concurrency > 0 {
		return r.Concurrency
	}
	return 8
}

func (r *Resolver) hash(locked []LockedFormula) (string, error) {
	data, err := json.Marshal(locked)
	if err != nil {
		return "", err
	}
	s, err := digest(bytes.NewBuffer(data))
	if err != nil {
		return "", err
	}
	return "sha256:" + s, nil
}

// resolveAll applies fn to every formula using a fixed number of workers.
// Results keep the order of formulae; the first error wins.
func resolveAll[T any](ctx context.Context, formulae []*Formula, concurrency int, fn func(context.Context, *Formula) (T, error)) ([]T, error) {
	type job struct {
		index   int
		formula *Formula
	}
	type result struct {
		index int
		value T
		err   error
	}

	num := len(formulae)
	jobs := make(chan job, num)
	results := make(chan result, num)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	worker := func(jobs <-chan job, res chan<- result) {
		for j := range jobs {
			v, err := fn(ctx, j.formula)
			if err != nil {
				err = metaerr.WithMetadata(err, "name", j.formula.Name)
			}
			res <- result{index: j.index, value: v, err: err}
		}
	}

	for range min(concurrency, num) {
		go worker(jobs, results)
	}

	// fan out jobs
	for i, f := range formulae {
		jobs <- job{index: i, formula: f}
	}
	close(jobs)

	// fan in results
	values := make([]T, num)
	for range num {
		res := <-results
		if res.err != nil {
			return nil, res.err
		}
		values[res.index] = res.value
	}
	return values, nil
}
