package mongo

import (
	"context"
	"crypto/subtle"
	"errors"
	"os"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mediastream/internal/domain"
)

const (
	mediaKindVideo = "video"
	mediaKindAudio = "audio"
)

// Repository is the MongoDB-backed catalogue: a media collection resolving
// IDs to source paths, and a settings collection holding the transcoding
// document. Bearer verification compares against the configured static token.
type Repository struct {
	media    *mongo.Collection
	settings *mongo.Collection
	token    string

	settingsDefaults domain.TranscodingSettings
}

type mediaDoc struct {
	ID          string `bson:"_id"`
	Title       string `bson:"title"`
	Path        string `bson:"path"`
	DurationSec int    `bson:"durationSec"`
	ThumbsPath  string `bson:"thumbsPath,omitempty"`
	Kind        string `bson:"kind"`
	CreatedAt   int64  `bson:"createdAt"`
	UpdatedAt   int64  `bson:"updatedAt"`
}

func NewRepository(client *mongo.Client, dbName, token string) *Repository {
	db := client.Database(dbName)
	return &Repository{
		media:            db.Collection("media"),
		settings:         db.Collection("settings"),
		token:            token,
		settingsDefaults: domain.DefaultTranscodingSettings(),
	}
}

// SetSettingsDefaults replaces the settings returned while no transcoding
// document exists yet. Call during startup, before serving.
func (r *Repository) SetSettingsDefaults(settings domain.TranscodingSettings) {
	r.settingsDefaults = settings.Normalize()
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.media == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "title", Value: "text"}}},
		{Keys: bson.D{{Key: "kind", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	}
	_, err := r.media.Indexes().CreateMany(ctx, models)
	return err
}

// GetVideo resolves a video item. A catalogue entry whose source file is gone
// reads as not found; the library may point at an unmounted disk.
func (r *Repository) GetVideo(ctx context.Context, id domain.MediaID) (domain.MediaHandle, error) {
	return r.getMedia(ctx, id, mediaKindVideo)
}

func (r *Repository) GetAudio(ctx context.Context, id domain.MediaID) (domain.MediaHandle, error) {
	return r.getMedia(ctx, id, mediaKindAudio)
}

func (r *Repository) getMedia(ctx context.Context, id domain.MediaID, kind string) (domain.MediaHandle, error) {
	var doc mediaDoc
	err := r.media.FindOne(ctx, bson.M{"_id": string(id), "kind": kind}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.MediaHandle{}, domain.ErrNotFound
		}
		return domain.MediaHandle{}, err
	}
	if _, err := os.Stat(doc.Path); err != nil {
		return domain.MediaHandle{}, domain.ErrNotFound
	}
	return fromDoc(doc), nil
}

// Upsert inserts or replaces one media entry.
func (r *Repository) Upsert(ctx context.Context, handle domain.MediaHandle, title, kind string) error {
	now := time.Now().UTC().Unix()
	update := bson.M{
		"$set": bson.M{
			"title":       title,
			"path":        handle.Path,
			"durationSec": handle.DurationSec,
			"thumbsPath":  handle.ThumbsPath,
			"kind":        kind,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := r.media.UpdateOne(ctx, bson.M{"_id": string(handle.ID)}, update, options.Update().SetUpsert(true))
	return err
}

func (r *Repository) Delete(ctx context.Context, id domain.MediaID) error {
	res, err := r.media.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns catalogue entries, newest first, optionally filtered by a
// case-insensitive title search.
func (r *Repository) List(ctx context.Context, search string, limit int) ([]domain.MediaHandle, error) {
	query := bson.M{}
	if s := strings.TrimSpace(search); s != "" {
		query["title"] = bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
	}

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.media.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []mediaDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	handles := make([]domain.MediaHandle, 0, len(docs))
	for _, doc := range docs {
		handles = append(handles, fromDoc(doc))
	}
	return handles, nil
}

// VerifyBearer checks the presented token against the configured one in
// constant time. An empty configured token disables auth entirely.
func (r *Repository) VerifyBearer(_ context.Context, token string) (domain.Principal, error) {
	if r.token == "" {
		return domain.Principal("anonymous"), nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(r.token)) != 1 {
		return "", domain.ErrUnauthorised
	}
	return domain.Principal("owner"), nil
}

func fromDoc(doc mediaDoc) domain.MediaHandle {
	return domain.MediaHandle{
		ID:          domain.MediaID(doc.ID),
		Path:        doc.Path,
		DurationSec: doc.DurationSec,
		Container:   domain.ContainerHint(doc.Path),
		ThumbsPath:  doc.ThumbsPath,
	}
}
