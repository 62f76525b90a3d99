// Package mongostore implements account.Store over MongoDB using the
// collections of the original service: users, roles and profiles.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/viridial/authcore/account"
)

const (
	usersCollection    = "users"
	rolesCollection    = "roles"
	profilesCollection = "profiles"
	defaultDBName      = "auth"
)

type userDoc struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty"`
	Email             string               `bson:"email"`
	Name              string               `bson:"name,omitempty"`
	PasswordHash      string               `bson:"passwordHash"`
	PreferredLanguage string               `bson:"preferredLanguage,omitempty"`
	EmailVerified     bool                 `bson:"emailVerified"`
	LoginAttempts     int64                `bson:"loginAttempts"`
	LockUntil         *time.Time           `bson:"lockUntil,omitempty"`
	Roles             []primitive.ObjectID `bson:"roles,omitempty"`
	Profiles          []primitive.ObjectID `bson:"profiles,omitempty"`
	LastLogin         *lastLoginDoc        `bson:"lastLogin,omitempty"`
	CreatedAt         time.Time            `bson:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt"`
}

type lastLoginDoc struct {
	At        time.Time `bson:"at"`
	IP        string    `bson:"ip,omitempty"`
	UserAgent string    `bson:"userAgent,omitempty"`
	Country   string    `bson:"country,omitempty"`
	Region    string    `bson:"region,omitempty"`
	City      string    `bson:"city,omitempty"`
}

type namedDoc struct {
	ID   primitive.ObjectID `bson:"_id"`
	Name string             `bson:"name"`
}

// Store is an account.Store backed by a MongoDB database.
type Store struct {
	client   *mongodriver.Client
	users    *mongodriver.Collection
	roles    *mongodriver.Collection
	profiles *mongodriver.Collection
	now      func() time.Time
}

// Connect dials uri, pings the primary and ensures indexes. The database
// name comes from the URI path, "auth" when absent.
func Connect(ctx context.Context, uri string) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongostore: empty uri")
	}
	cli, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := New(cli.Database(databaseFromURI(uri)))
	s.client = cli
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle. Close is a no-op for stores made
// this way.
func New(db *mongodriver.Database) *Store {
	return &Store{
		users:    db.Collection(usersCollection),
		roles:    db.Collection(rolesCollection),
		profiles: db.Collection(profilesCollection),
		now:      time.Now,
	}
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique email index the duplicate check relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("email_unique").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo ensure indexes: %w", err)
	}
	return nil
}

func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*account.Account, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, bson.D{{Key: "email", Value: identifier}}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: find %q: %w", identifier, err)
	}
	return doc.toAccount(), nil
}

func (s *Store) Update(ctx context.Context, identifier string, u account.Update) error {
	if u.Empty() {
		return nil
	}
	res, err := s.users.UpdateOne(ctx, bson.D{{Key: "email", Value: identifier}}, updateDocument(u, s.now().UTC()))
	if err != nil {
		return fmt.Errorf("mongostore: update %q: %w", identifier, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("mongostore: update %q: no such account", identifier)
	}
	return nil
}

func (s *Store) Increment(ctx context.Context, identifier string, field account.Field) (int64, error) {
	name, ok := fieldNames[field]
	if !ok {
		return 0, fmt.Errorf("mongostore: unsupported field %q", field)
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: name, Value: 1}})
	var out bson.M
	err := s.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "email", Value: identifier}},
		bson.D{
			{Key: "$inc", Value: bson.D{{Key: name, Value: int64(1)}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: s.now().UTC()}}},
		},
		opts,
	).Decode(&out)
	if err != nil {
		return 0, fmt.Errorf("mongostore: increment %q: %w", identifier, err)
	}
	return asInt64(out[name])
}

func (s *Store) Create(ctx context.Context, in account.New) (*account.Account, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	roles, err := objectIDs(in.RoleIDs)
	if err != nil {
		return nil, fmt.Errorf("mongostore: %w", err)
	}
	doc := userDoc{
		ID:                primitive.NewObjectID(),
		Email:             in.Identifier,
		Name:              in.DisplayName,
		PasswordHash:      in.SecretHash,
		PreferredLanguage: in.Locale,
		EmailVerified:     in.EmailVerified,
		Roles:             roles,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return nil, account.ErrDuplicate
		}
		return nil, fmt.Errorf("mongostore: create %q: %w", in.Identifier, err)
	}
	return doc.toAccount(), nil
}

// Describe resolves role and profile ids to their names.
func (s *Store) Describe(ctx context.Context, a *account.Account) (*account.Summary, error) {
	roles, err := s.names(ctx, s.roles, a.RoleIDs)
	if err != nil {
		return nil, fmt.Errorf("mongostore: roles of %q: %w", a.Identifier, err)
	}
	profiles, err := s.names(ctx, s.profiles, a.ProfileIDs)
	if err != nil {
		return nil, fmt.Errorf("mongostore: profiles of %q: %w", a.Identifier, err)
	}
	return &account.Summary{
		ID:            a.ID,
		Identifier:    a.Identifier,
		DisplayName:   a.DisplayName,
		Locale:        a.Locale,
		EmailVerified: a.EmailVerified,
		Roles:         roles,
		Profiles:      profiles,
	}, nil
}

func (s *Store) names(ctx context.Context, coll *mongodriver.Collection, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	oids, err := objectIDs(ids)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}},
		options.Find().SetProjection(bson.D{{Key: "name", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var docs []namedDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return orderedNames(oids, docs), nil
}

var fieldNames = map[account.Field]string{
	account.FieldFailedAttempts: "loginAttempts",
}

func (d *userDoc) toAccount() *account.Account {
	a := &account.Account{
		ID:             d.ID.Hex(),
		Identifier:     d.Email,
		DisplayName:    d.Name,
		SecretHash:     d.PasswordHash,
		Locale:         d.PreferredLanguage,
		EmailVerified:  d.EmailVerified,
		FailedAttempts: d.LoginAttempts,
		RoleIDs:        hexIDs(d.Roles),
		ProfileIDs:     hexIDs(d.Profiles),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if d.LockUntil != nil {
		a.LockUntil = *d.LockUntil
	}
	if ll := d.LastLogin; ll != nil {
		a.LastLogin = account.LoginContext{At: ll.At, IP: ll.IP, UserAgent: ll.UserAgent}
		if ll.Country != "" || ll.Region != "" || ll.City != "" {
			a.LastLogin.Geo = &account.GeoInfo{Country: ll.Country, Region: ll.Region, City: ll.City}
		}
	}
	return a
}

// updateDocument turns a partial update into $set/$unset operators. A zero
// LockUntil removes the field.
func updateDocument(u account.Update, now time.Time) bson.D {
	set := bson.D{{Key: "updatedAt", Value: now}}
	var unset bson.D

	if u.SecretHash != nil {
		set = append(set, bson.E{Key: "passwordHash", Value: *u.SecretHash})
	}
	if u.EmailVerified != nil {
		set = append(set, bson.E{Key: "emailVerified", Value: *u.EmailVerified})
	}
	if u.FailedAttempts != nil {
		set = append(set, bson.E{Key: "loginAttempts", Value: *u.FailedAttempts})
	}
	if u.LockUntil != nil {
		if u.LockUntil.IsZero() {
			unset = append(unset, bson.E{Key: "lockUntil", Value: ""})
		} else {
			set = append(set, bson.E{Key: "lockUntil", Value: u.LockUntil.UTC()})
		}
	}
	if ll := u.LastLogin; ll != nil {
		doc := lastLoginDoc{At: ll.At.UTC(), IP: ll.IP, UserAgent: ll.UserAgent}
		if ll.Geo != nil {
			doc.Country, doc.Region, doc.City = ll.Geo.Country, ll.Geo.Region, ll.Geo.City
		}
		set = append(set, bson.E{Key: "lastLogin", Value: doc})
	}

	out := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		out = append(out, bson.E{Key: "$unset", Value: unset})
	}
	return out
}

func objectIDs(ids []string) ([]primitive.ObjectID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("invalid object id %q", id)
		}
		out = append(out, oid)
	}
	return out, nil
}

func hexIDs(oids []primitive.ObjectID) []string {
	if len(oids) == 0 {
		return nil
	}
	out := make([]string, len(oids))
	for i, oid := range oids {
		out[i] = oid.Hex()
	}
	return out
}

// orderedNames returns names in the order of ids, skipping dangling ids.
func orderedNames(ids []primitive.ObjectID, docs []namedDoc) []string {
	byID := make(map[primitive.ObjectID]string, len(docs))
	for _, d := range docs {
		byID[d.ID] = d.Name
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			out = append(out, name)
		}
	}
	return out
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("mongostore: unexpected counter type %T", v)
	}
}

// databaseFromURI returns the database named in the URI path.
func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}
	return defaultDBName
}
