package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/starford/quarry/internal/checksum"
	"github.com/starford/quarry/internal/ident"
	"github.com/starford/quarry/internal/models"
	"github.com/starford/quarry/internal/parser"
	"github.com/starford/quarry/internal/storage"
	"github.com/starford/quarry/internal/validate"
)

// scanFile reads and validates one file within the item budget. old is
// the entry the previous snapshot held for the path, if any; it is
// returned unchanged when the bytes, mod time and config are the same.
// Read errors are returned as is; everything else becomes item state.
func scanFile(ctx context.Context, cfg Config, cfgVersion uint64, old *entry, p string) (*entry, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ItemBudget)
	defer cancel()

	type result struct {
		e   *entry
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				it := failedItem(cfg, p, models.KindParseError, fmt.Sprintf("panic while scanning: %v", r))
				ch <- result{e: &entry{base: it, final: it, cfgVersion: cfgVersion}}
			}
		}()
		e, err := loadFile(cfg, cfgVersion, old, p)
		ch <- result{e: e, err: err}
	}()

	select {
	case r := <-ch:
		return r.e, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			it := failedItem(cfg, p, models.KindBudgetExceeded,
				fmt.Sprintf("processing exceeded the %s item budget", cfg.ItemBudget))
			return &entry{base: it, final: it, cfgVersion: cfgVersion}, nil
		}
		return nil, ctx.Err()
	}
}

func loadFile(cfg Config, cfgVersion uint64, old *entry, p string) (*entry, error) {
	data, info, err := cfg.Source.Read(p)
	if err != nil {
		return nil, err
	}
	sum := checksum.Sum(data)
	if old != nil && old.cfgVersion == cfgVersion &&
		old.base.Checksum == sum && old.base.ModifiedAt.Equal(info.ModTime) {
		return old, nil
	}
	it := buildItem(cfg, p, data, info, sum)
	return &entry{base: it, final: it, cfgVersion: cfgVersion}, nil
}

// buildItem turns raw file content into an item. Parse failures and
// identifier problems are recorded as validation errors.
func buildItem(cfg Config, p string, data []byte, info storage.FileInfo, sum string) *models.Item {
	it := &models.Item{
		Collection: cfg.Name,
		Path:       p,
		Checksum:   sum,
		ModifiedAt: info.ModTime,
	}
	res, err := parser.Parse(p, data, parser.Options{SlugField: cfg.SlugField})
	if err != nil {
		it.ID = ident.Resolve("", path.Base(p), cfg.Ident)
		it.Validation = models.NewValidationResult([]models.ValidationError{{
			Kind:    models.KindParseError,
			Message: err.Error(),
		}}, nil, time.Now().UTC())
		return it
	}

	it.ID = ident.Resolve(res.DeclaredID, path.Base(p), cfg.Ident)
	it.Body = res.Body
	meta := res.Metadata
	slugField := cmp.Or(cfg.SlugField, parser.DefaultSlugField)
	if _, declared := cfg.Schema.Field(slugField); !declared {
		meta = meta.Without(slugField)
	}
	it.Metadata = meta

	vr := validate.Validate(cfg.Schema, meta)
	if it.ID == "" {
		vr = vr.WithErrors(models.ValidationError{
			Kind:    models.KindInvalidIdentifier,
			Message: "neither the declared slug nor the file name yields an identifier",
			Value:   res.DeclaredID,
		})
	}
	it.Validation = vr
	return it
}

// retain keeps the last known-good state of a path whose file could not be
// read. Under a new config the kept metadata is validated again.
func retain(cfg Config, cfgVersion uint64, old *entry) *entry {
	if old.cfgVersion == cfgVersion {
		return old
	}
	it := *old.base
	it.Collection = cfg.Name
	it.Version = 0
	if !scanFailed(it.Validation) {
		it.Validation = validate.Validate(cfg.Schema, it.Metadata)
	}
	return &entry{base: &it, final: &it, cfgVersion: cfgVersion}
}

func failedItem(cfg Config, p string, kind models.ErrorKind, msg string) *models.Item {
	return &models.Item{
		ID:         ident.Resolve("", path.Base(p), cfg.Ident),
		Collection: cfg.Name,
		Path:       p,
		Validation: models.NewValidationResult([]models.ValidationError{{Kind: kind, Message: msg}}, nil, time.Now().UTC()),
	}
}

func scanFailed(r models.ValidationResult) bool {
	for _, e := range r.Errors {
		if e.Kind == models.KindParseError || e.Kind == models.KindBudgetExceeded {
			return true
		}
	}
	return false
}
