package zensync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	mongoDefaultDatabase = "zensync"
	mongoConnectTimeout  = 10 * time.Second
)

// MongoRemoteStore mirrors entities into document collections named after
// the remote tables. Entity ids are stored as _id so upserts are plain
// ReplaceOne calls; user_stats documents are keyed by email.
type MongoRemoteStore struct {
	uri      string
	database string

	initOnce sync.Once
	initErr  error
	client   *mongo.Client
}

func NewMongoRemoteStore(uri string) (*MongoRemoteStore, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, ErrInvalidConfig
	}
	return &MongoRemoteStore{uri: uri, database: mongoDatabaseFromURI(uri)}, nil
}

func mongoDatabaseFromURI(uri string) string {
	rest := uri
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[idx+1:]
		if idx := strings.IndexByte(rest, '?'); idx >= 0 {
			rest = rest[:idx]
		}
		if rest != "" {
			return rest
		}
	}
	return mongoDefaultDatabase
}

func (r *MongoRemoteStore) ensureReady() error {
	if r == nil {
		return ErrInvalidInput
	}
	r.initOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(r.uri))
		if err != nil {
			r.initErr = err
			return
		}
		r.client = client
	})
	return r.initErr
}

func (r *MongoRemoteStore) collection(name string) *mongo.Collection {
	return r.client.Database(r.database).Collection(name)
}

type mongoNoteDoc struct {
	ID              string `bson:"_id"`
	UserEmail       string `bson:"user_email"`
	FolderID        string `bson:"folder_id"`
	Title           string `bson:"title"`
	Content         string `bson:"content"`
	UpdatedAt       int64  `bson:"updated_at"`
	TargetWordCount int    `bson:"target_word_count,omitempty"`
}

type mongoFolderDoc struct {
	ID        string `bson:"_id"`
	UserEmail string `bson:"user_email"`
	Name      string `bson:"name"`
	Color     string `bson:"color,omitempty"`
}

type mongoInspirationDoc struct {
	ID        string  `bson:"_id"`
	UserEmail string  `bson:"user_email"`
	Type      string  `bson:"type"`
	Content   string  `bson:"content"`
	Title     string  `bson:"title,omitempty"`
	Snippet   string  `bson:"snippet,omitempty"`
	CreatedAt int64   `bson:"created_at"`
	X         float64 `bson:"x,omitempty"`
	Y         float64 `bson:"y,omitempty"`
}

type mongoStatsDoc struct {
	UserEmail string `bson:"_id"`
	StatsJSON string `bson:"stats_json"`
}

var mongoUpsert = options.Replace().SetUpsert(true)

func (r *MongoRemoteStore) FetchNotes(ctx context.Context, email string) ([]Note, error) {
	if err := r.ensureReady(); err != nil {
		return nil, err
	}
	cursor, err := r.collection(CollectionNotes).Find(ctx, bson.M{"user_email": email})
	if err != nil {
		return nil, err
	}
	var docs []mongoNoteDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	notes := make([]Note, 0, len(docs))
	for _, doc := range docs {
		notes = append(notes, Note{
			ID:              doc.ID,
			FolderID:        doc.FolderID,
			Title:           doc.Title,
			Content:         doc.Content,
			UpdatedAt:       doc.UpdatedAt,
			TargetWordCount: doc.TargetWordCount,
		})
	}
	return notes, nil
}

func (r *MongoRemoteStore) UpsertNote(ctx context.Context, email string, note Note) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	doc := mongoNoteDoc{
		ID:              note.ID,
		UserEmail:       email,
		FolderID:        note.FolderID,
		Title:           note.Title,
		Content:         note.Content,
		UpdatedAt:       note.UpdatedAt,
		TargetWordCount: note.TargetWordCount,
	}
	_, err := r.collection(CollectionNotes).ReplaceOne(ctx, bson.M{"_id": note.ID}, doc, mongoUpsert)
	return err
}

func (r *MongoRemoteStore) DeleteNote(ctx context.Context, id string) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	_, err := r.collection(CollectionNotes).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *MongoRemoteStore) FetchFolders(ctx context.Context, email string) ([]Folder, error) {
	if err := r.ensureReady(); err != nil {
		return nil, err
	}
	cursor, err := r.collection(CollectionFolders).Find(ctx, bson.M{"user_email": email})
	if err != nil {
		return nil, err
	}
	var docs []mongoFolderDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	folders := make([]Folder, 0, len(docs))
	for _, doc := range docs {
		folders = append(folders, Folder{ID: doc.ID, Name: doc.Name, Color: doc.Color})
	}
	return folders, nil
}

func (r *MongoRemoteStore) UpsertFolders(ctx context.Context, email string, folders []Folder) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	for _, folder := range folders {
		doc := mongoFolderDoc{ID: folder.ID, UserEmail: email, Name: folder.Name, Color: folder.Color}
		if _, err := r.collection(CollectionFolders).ReplaceOne(ctx, bson.M{"_id": folder.ID}, doc, mongoUpsert); err != nil {
			return err
		}
	}
	return nil
}

func (r *MongoRemoteStore) FetchInspiration(ctx context.Context, email string) ([]InspirationItem, error) {
	if err := r.ensureReady(); err != nil {
		return nil, err
	}
	cursor, err := r.collection(CollectionInspiration).Find(ctx, bson.M{"user_email": email})
	if err != nil {
		return nil, err
	}
	var docs []mongoInspirationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	items := make([]InspirationItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, InspirationItem{
			ID:        doc.ID,
			Type:      InspirationType(doc.Type),
			Content:   doc.Content,
			Title:     doc.Title,
			Snippet:   doc.Snippet,
			CreatedAt: doc.CreatedAt,
			X:         doc.X,
			Y:         doc.Y,
		})
	}
	return items, nil
}

func (r *MongoRemoteStore) UpsertInspiration(ctx context.Context, email string, items []InspirationItem) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	for _, item := range items {
		doc := mongoInspirationDoc{
			ID:        item.ID,
			UserEmail: email,
			Type:      string(item.Type),
			Content:   item.Content,
			Title:     item.Title,
			Snippet:   item.Snippet,
			CreatedAt: item.CreatedAt,
			X:         item.X,
			Y:         item.Y,
		}
		if _, err := r.collection(CollectionInspiration).ReplaceOne(ctx, bson.M{"_id": item.ID}, doc, mongoUpsert); err != nil {
			return err
		}
	}
	return nil
}

func (r *MongoRemoteStore) DeleteInspiration(ctx context.Context, id string) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	_, err := r.collection(CollectionInspiration).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *MongoRemoteStore) FetchStats(ctx context.Context, email string) (*UserStats, error) {
	if err := r.ensureReady(); err != nil {
		return nil, err
	}
	var doc mongoStatsDoc
	err := r.collection("user_stats").FindOne(ctx, bson.M{"_id": email}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return statsFromRow(statsRow{UserEmail: email, StatsJSON: doc.StatsJSON})
}

func (r *MongoRemoteStore) UpsertStats(ctx context.Context, email string, stats UserStats) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	row, err := statsToRow(email, stats)
	if err != nil {
		return err
	}
	doc := mongoStatsDoc{UserEmail: email, StatsJSON: row.StatsJSON}
	_, err = r.collection("user_stats").ReplaceOne(ctx, bson.M{"_id": email}, doc, mongoUpsert)
	return err
}

func (r *MongoRemoteStore) Ping(ctx context.Context) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	return r.client.Ping(ctx, readpref.Primary())
}

func (r *MongoRemoteStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return r.client.Disconnect(ctx)
}
