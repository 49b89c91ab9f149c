package tracker

import (
	"context"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/entity"
	"github.com/ethpandaops/promotoor/pkg/events"
	"github.com/gabriel-vasile/mimetype"
)

// pngMIME is the only accepted image content type.
const pngMIME = "image/png"

// checkImage validates an image payload before any store mutation, so a
// rejected upload never clobbers a stored image.
func (s *Service) checkImage(data []byte) error {
	if len(data) == 0 {
		return imageErr("image payload is empty")
	}

	if len(data) > s.imageMaxBytes {
		return imageErr(
			"image size %d exceeds the maximum of %d bytes",
			len(data), s.imageMaxBytes,
		)
	}

	if mime := mimetype.Detect(data); !mime.Is(pngMIME) {
		return imageErr("image content type %s is not %s", mime.String(), pngMIME)
	}

	return nil
}

// SetPromotionLevelImage stores a PNG icon for a promotion level.
func (s *Service) SetPromotionLevelImage(
	ctx context.Context, sig Signature, id uint, data []byte,
) error {
	if err := s.checkImage(data); err != nil {
		return err
	}

	return s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetPromotionLevel(ctx, id); err != nil {
			return mapErr(err, "promotion level %d", id)
		}

		if err := tx.UpdatePromotionLevelImage(ctx, id, data); err != nil {
			return mapErr(err, "updating promotion level %d image", id)
		}

		return s.emit(ctx, tx, events.TypeImageUpdated, sig, nil,
			entity.Ref{Kind: entity.KindPromotionLevel, ID: id})
	})
}

// GetPromotionLevelImage returns the stored icon bytes, which may be
// empty when no image was ever uploaded.
func (s *Service) GetPromotionLevelImage(
	ctx context.Context, id uint,
) ([]byte, error) {
	data, err := s.store.GetPromotionLevelImage(ctx, id)

	return data, mapErr(err, "promotion level %d", id)
}

// SetValidationStampImage stores a PNG icon for a validation stamp.
func (s *Service) SetValidationStampImage(
	ctx context.Context, sig Signature, id uint, data []byte,
) error {
	if err := s.checkImage(data); err != nil {
		return err
	}

	return s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetValidationStamp(ctx, id); err != nil {
			return mapErr(err, "validation stamp %d", id)
		}

		if err := tx.UpdateValidationStampImage(ctx, id, data); err != nil {
			return mapErr(err, "updating validation stamp %d image", id)
		}

		return s.emit(ctx, tx, events.TypeImageUpdated, sig, nil,
			entity.Ref{Kind: entity.KindValidationStamp, ID: id})
	})
}

// GetValidationStampImage returns the stored icon bytes.
func (s *Service) GetValidationStampImage(
	ctx context.Context, id uint,
) ([]byte, error) {
	data, err := s.store.GetValidationStampImage(ctx, id)

	return data, mapErr(err, "validation stamp %d", id)
}
