package batch

import (
	"context"
	"strconv"

	"qrm-ticketing/internal/blob"
)

// ImageSink receives each rendered ticket image. Exactly one sink is chosen
// per run.
type ImageSink interface {
	Save(ctx context.Context, filename string, png []byte, reference string, sequence int) error
}

// BlobSink uploads under qrcodes/<generation date>/ with {no, ref} custom
// metadata so exports can re-order without parsing filenames.
type BlobSink struct {
	Store          blob.Store
	GenerationDate string
}

func (s *BlobSink) Save(ctx context.Context, filename string, png []byte, reference string, sequence int) error {
	meta := blob.Metadata{
		"no":  strconv.Itoa(sequence),
		"ref": reference,
	}
	return s.Store.Upload(ctx, "qrcodes/"+s.GenerationDate+"/"+filename, png, meta)
}

// GallerySink writes into the local picture gallery, organized under a
// per-run date-stamped folder.
type GallerySink struct {
	Store          blob.Store
	GenerationDate string
}

func (s *GallerySink) Save(ctx context.Context, filename string, png []byte, reference string, sequence int) error {
	return s.Store.Upload(ctx, "QRM/"+s.GenerationDate+"/"+filename, png, nil)
}
