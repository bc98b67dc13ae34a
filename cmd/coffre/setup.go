package main

import (
	"fmt"
	"os"
	"time"

	"github.com/toccatech/coffre"
	"github.com/toccatech/coffre/auth"
	"github.com/toccatech/coffre/config"
	"github.com/toccatech/coffre/filesystem"
	"github.com/toccatech/coffre/metastore"
	"github.com/toccatech/coffre/sniff"
)

// buildStack wires the metadata store client, blob store, and file service
// from the loaded config. The returned cleanup closes the uploads root.
func buildStack(cfg *config.Config) (*coffre.FileService, *metastore.Client, func(), error) {
	keyPEM, err := os.ReadFile(cfg.Auth.KeyFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read signing key: %w", err)
	}

	signer, err := auth.NewAssertionSigner(keyPEM, auth.AssertionConfig{
		Subject:  cfg.Auth.Subject,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	meta, err := metastore.New(cfg.Metastore.URL, signer,
		metastore.WithTimeout(time.Duration(cfg.Metastore.Timeout)*time.Second))
	if err != nil {
		return nil, nil, nil, err
	}

	if err := os.MkdirAll(cfg.Uploads.Dir, 0o750); err != nil {
		return nil, nil, nil, fmt.Errorf("create uploads directory: %w", err)
	}

	root, err := os.OpenRoot(cfg.Uploads.Dir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open uploads root: %w", err)
	}
	cleanup := func() { _ = root.Close() }

	blobs := filesystem.NewBlobStore(root)

	service, err := coffre.NewFileService(meta, blobs, sniff.New(), coffre.ServiceConfig{
		CleanupTimeout: time.Duration(cfg.Uploads.CleanupTimeout) * time.Second,
	})
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("create service: %w", err)
	}

	return service, meta, cleanup, nil
}
