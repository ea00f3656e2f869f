package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "users"

type userDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	FullName         string             `bson:"fullName"`
	Email            string             `bson:"email"`
	MobileNumber     string             `bson:"mobileNumber,omitempty"`
	DOB              *time.Time         `bson:"dob,omitempty"`
	Gender           string             `bson:"gender,omitempty"`
	Address          string             `bson:"address,omitempty"`
	BloodGroup       string             `bson:"bloodGroup,omitempty"`
	MaritalStatus    string             `bson:"maritalStatus,omitempty"`
	EmergencyContact string             `bson:"emergencyContact,omitempty"`
	Consent          bool               `bson:"consent"`
	Password         string             `bson:"password"`
	Role             string             `bson:"role"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`
}

type mongoRepo struct {
	coll *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) Repository {
	return &mongoRepo{coll: db.Collection(CollectionName)}
}

// EnsureMongoIndexes creates the unique email index. Concurrent duplicate
// registrations are rejected by it.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(CollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("ensure %s indexes: %w", CollectionName, err)
	}
	return nil
}

func (r *mongoRepo) Create(ctx context.Context, u *User) error {
	doc := userDoc{
		FullName:         u.FullName,
		Email:            u.Email,
		MobileNumber:     u.MobileNumber,
		DOB:              u.DOB,
		Gender:           u.Gender,
		Address:          u.Address,
		BloodGroup:       u.BloodGroup,
		MaritalStatus:    u.MaritalStatus,
		EmergencyContact: u.EmergencyContact,
		Consent:          u.Consent,
		Password:         u.PasswordHash,
		Role:             u.Role,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	res, err := r.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		u.ID = oid.Hex()
	}
	return nil
}

func (r *mongoRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *mongoRepo) GetByID(ctx context.Context, id string) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *mongoRepo) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var doc userDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &User{
		ID:               doc.ID.Hex(),
		FullName:         doc.FullName,
		Email:            doc.Email,
		MobileNumber:     doc.MobileNumber,
		DOB:              doc.DOB,
		Gender:           doc.Gender,
		Address:          doc.Address,
		BloodGroup:       doc.BloodGroup,
		MaritalStatus:    doc.MaritalStatus,
		EmergencyContact: doc.EmergencyContact,
		Consent:          doc.Consent,
		PasswordHash:     doc.Password,
		Role:             doc.Role,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}, nil
}
