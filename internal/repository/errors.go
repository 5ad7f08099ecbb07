package repository

import "errors"

var (
	// ErrUnsupportedScheme indicates a reference no backend can serve
	ErrUnsupportedScheme = errors.New("unsupported content reference scheme")

	// ErrBlobStorageUnavailable indicates azblob references without configured credentials
	ErrBlobStorageUnavailable = errors.New("blob storage not configured")

	// ErrEmptyContent indicates the origin returned no bytes
	ErrEmptyContent = errors.New("content is empty")
)
