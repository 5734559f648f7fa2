package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ikmb/vcf2prot/internal/fastaio"
	"github.com/ikmb/vcf2prot/internal/refcache"
	"github.com/ikmb/vcf2prot/internal/reference"
)

func loadReferenceFasta(path string) (*reference.Index, error) {
	f, err := fastaio.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return reference.Load(f)
}

func loadReferenceCached(flags runFlags, logger *zap.Logger) (*reference.Index, error) {
	fp, err := refcache.StatFile(flags.fastaPath)
	if err != nil {
		return nil, fmt.Errorf("stat reference fasta: %w", err)
	}

	store, err := refcache.Open(flags.cachePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if store.Valid(fp) {
		idx, err := store.ReadIndex()
		if err == nil {
			logger.Info("reference loaded from cache", zap.String("cache", flags.cachePath))
			return idx, nil
		}
		logger.Warn("reference cache unreadable, falling back to fasta", zap.Error(err))
	}

	idx, err := loadReferenceFasta(flags.fastaPath)
	if err != nil {
		return nil, err
	}
	if err := store.WriteIndex(idx, fp); err != nil {
		logger.Warn("could not write reference cache", zap.Error(err))
	}
	return idx, nil
}
