package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mediastream/internal/domain"
)

const transcodingSettingsID = "transcoding"

type transcodingSettingsDoc struct {
	ID                  string `bson:"_id"`
	Bitrate1080p        int    `bson:"bitrate1080p,omitempty"`
	Bitrate720p         int    `bson:"bitrate720p,omitempty"`
	Bitrate480p         int    `bson:"bitrate480p,omitempty"`
	Bitrate360p         int    `bson:"bitrate360p,omitempty"`
	SegmentDuration     int    `bson:"segmentDuration"`
	PrefetchSegments    int    `bson:"prefetchSegments"`
	EnableHardwareAccel bool   `bson:"enableHardwareAccel"`
	Preset              string `bson:"preset"`
	EnableLowLatency    bool   `bson:"enableLowLatency"`
	ThreadCount         int    `bson:"threadCount"`
	UpdatedAt           int64  `bson:"updatedAt"`
}

// GetTranscodingSettings reads the transcoding document. A missing document
// yields the defaults, not an error; the settings endpoint creates it on
// first write.
func (r *Repository) GetTranscodingSettings(ctx context.Context) (domain.TranscodingSettings, error) {
	var doc transcodingSettingsDoc
	err := r.settings.FindOne(ctx, bson.M{"_id": transcodingSettingsID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return r.settingsDefaults, nil
		}
		return domain.TranscodingSettings{}, err
	}
	settings := domain.TranscodingSettings{
		Bitrate1080p:        doc.Bitrate1080p,
		Bitrate720p:         doc.Bitrate720p,
		Bitrate480p:         doc.Bitrate480p,
		Bitrate360p:         doc.Bitrate360p,
		SegmentDurationSec:  doc.SegmentDuration,
		PrefetchSegments:    doc.PrefetchSegments,
		EnableHardwareAccel: doc.EnableHardwareAccel,
		Preset:              doc.Preset,
		EnableLowLatency:    doc.EnableLowLatency,
		ThreadCount:         doc.ThreadCount,
	}
	return settings.Normalize(), nil
}

func (r *Repository) SetTranscodingSettings(ctx context.Context, settings domain.TranscodingSettings) error {
	update := bson.M{
		"$set": bson.M{
			"bitrate1080p":        settings.Bitrate1080p,
			"bitrate720p":         settings.Bitrate720p,
			"bitrate480p":         settings.Bitrate480p,
			"bitrate360p":         settings.Bitrate360p,
			"segmentDuration":     settings.SegmentDurationSec,
			"prefetchSegments":    settings.PrefetchSegments,
			"enableHardwareAccel": settings.EnableHardwareAccel,
			"preset":              settings.Preset,
			"enableLowLatency":    settings.EnableLowLatency,
			"threadCount":         settings.ThreadCount,
			"updatedAt":           time.Now().Unix(),
		},
	}
	_, err := r.settings.UpdateOne(
		ctx,
		bson.M{"_id": transcodingSettingsID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}
