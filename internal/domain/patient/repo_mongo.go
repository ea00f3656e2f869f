package patient

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "patients"

type patientDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Name             string             `bson:"name"`
	Email            string             `bson:"email"`
	Phone            string             `bson:"phone"`
	ComplianceStatus string             `bson:"complianceStatus"`
	ComplianceScore  int                `bson:"complianceScore"`
	AssignedDate     time.Time          `bson:"assignedDate"`
	Goals            []goalDoc          `bson:"goals"`
	DailyLogs        []dailyLogDoc      `bson:"dailyLogs"`
	Reminders        []reminderDoc      `bson:"reminders"`
	ComplianceNotes  []noteDoc          `bson:"complianceNotes"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`
	Version          int                `bson:"__v"`
}

type goalDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	Title        string             `bson:"title"`
	Description  string             `bson:"description"`
	TargetValue  float64            `bson:"targetValue"`
	CurrentValue float64            `bson:"currentValue"`
	Unit         string             `bson:"unit"`
	Deadline     time.Time          `bson:"deadline"`
	Status       string             `bson:"status"`
}

type dailyLogDoc struct {
	ID         primitive.ObjectID `bson:"_id"`
	Date       time.Time          `bson:"date"`
	Steps      int                `bson:"steps"`
	SleepHours float64            `bson:"sleepHours"`
	Notes      string             `bson:"notes,omitempty"`
}

type reminderDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	DueDate     time.Time          `bson:"dueDate"`
	Completed   bool               `bson:"completed"`
	Priority    string             `bson:"priority"`
}

type noteDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Note      string             `bson:"note"`
	CreatedAt time.Time          `bson:"createdAt"`
	CreatedBy string             `bson:"createdBy"`
}

// summaryProjection leaves the embedded sequences out of list results.
var summaryProjection = bson.M{
	"goals":           0,
	"dailyLogs":       0,
	"reminders":       0,
	"complianceNotes": 0,
}

type mongoRepo struct {
	coll *mongo.Collection
}

func NewMongoRepo(database *mongo.Database) Repository {
	return &mongoRepo{coll: database.Collection(CollectionName)}
}

// EnsureMongoIndexes creates the unique email index.
func EnsureMongoIndexes(ctx context.Context, database *mongo.Database) error {
	_, err := database.Collection(CollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create patients email index: %w", err)
	}
	return nil
}

func (r *mongoRepo) Create(ctx context.Context, p *Patient) error {
	doc := toPatientDoc(p)
	doc.ID = primitive.NewObjectID()
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	*p = *fromPatientDoc(&doc, true)
	return nil
}

func (r *mongoRepo) List(ctx context.Context, f ListFilter) ([]*Patient, error) {
	filter := bson.M{}
	if f.Compliance != "" {
		filter["complianceStatus"] = string(f.Compliance)
	}
	if f.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"email": pattern},
		}
	}

	opts := options.Find().
		SetProjection(summaryProjection).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}
	defer cur.Close(ctx)

	var out []*Patient
	for cur.Next(ctx) {
		var doc patientDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode patient: %w", err)
		}
		out = append(out, fromPatientDoc(&doc, false))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return out, nil
}

func (r *mongoRepo) GetByID(ctx context.Context, id string) (*Patient, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	var doc patientDoc
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find patient %s: %w", id, err)
	}
	return fromPatientDoc(&doc, true), nil
}

func (r *mongoRepo) AppendComplianceNote(ctx context.Context, patientID string, n *ComplianceNote) (*ComplianceNote, error) {
	oid, err := parseObjectID(patientID)
	if err != nil {
		return nil, err
	}

	nd := noteDoc{
		ID:        primitive.NewObjectID(),
		Note:      n.Note,
		CreatedAt: n.CreatedAt,
		CreatedBy: n.CreatedBy,
	}
	update := bson.M{
		"$push": bson.M{"complianceNotes": nd},
		"$set":  bson.M{"updatedAt": n.CreatedAt},
		"$inc":  bson.M{"__v": 1},
	}
	// Project only the pushed element so the response reflects what was stored.
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"complianceNotes": bson.M{"$elemMatch": bson.M{"_id": nd.ID}}})

	var res struct {
		Notes []noteDoc `bson:"complianceNotes"`
	}
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&res)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("append compliance note to %s: %w", patientID, err)
	}
	if len(res.Notes) != 1 {
		return nil, fmt.Errorf("append compliance note to %s: stored note not returned", patientID)
	}

	stored := fromNoteDoc(res.Notes[0])
	return &stored, nil
}

func (r *mongoRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("delete patients: %w", err)
	}
	return res.DeletedCount, nil
}

// -- conversions --

func toPatientDoc(p *Patient) patientDoc {
	doc := patientDoc{
		Name:             p.Name,
		Email:            p.Email,
		Phone:            p.Phone,
		ComplianceStatus: string(p.ComplianceStatus),
		ComplianceScore:  p.ComplianceScore,
		AssignedDate:     p.AssignedDate,
		Goals:            make([]goalDoc, 0, len(p.Goals)),
		DailyLogs:        make([]dailyLogDoc, 0, len(p.DailyLogs)),
		Reminders:        make([]reminderDoc, 0, len(p.Reminders)),
		ComplianceNotes:  make([]noteDoc, 0, len(p.ComplianceNotes)),
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	for _, g := range p.Goals {
		doc.Goals = append(doc.Goals, goalDoc{
			ID:           primitive.NewObjectID(),
			Title:        g.Title,
			Description:  g.Description,
			TargetValue:  g.TargetValue,
			CurrentValue: g.CurrentValue,
			Unit:         g.Unit,
			Deadline:     g.Deadline,
			Status:       string(g.Status),
		})
	}
	for _, l := range p.DailyLogs {
		doc.DailyLogs = append(doc.DailyLogs, dailyLogDoc{
			ID:         primitive.NewObjectID(),
			Date:       l.Date,
			Steps:      l.Steps,
			SleepHours: l.SleepHours,
			Notes:      l.Notes,
		})
	}
	for _, rm := range p.Reminders {
		doc.Reminders = append(doc.Reminders, reminderDoc{
			ID:          primitive.NewObjectID(),
			Title:       rm.Title,
			Description: rm.Description,
			DueDate:     rm.DueDate,
			Completed:   rm.Completed,
			Priority:    string(rm.Priority),
		})
	}
	for _, n := range p.ComplianceNotes {
		doc.ComplianceNotes = append(doc.ComplianceNotes, noteDoc{
			ID:        primitive.NewObjectID(),
			Note:      n.Note,
			CreatedAt: n.CreatedAt,
			CreatedBy: n.CreatedBy,
		})
	}
	return doc
}

// fromPatientDoc converts a stored document. With full set, absent
// sequences come back as empty slices rather than nil.
func fromPatientDoc(doc *patientDoc, full bool) *Patient {
	p := &Patient{
		ID:               doc.ID.Hex(),
		Name:             doc.Name,
		Email:            doc.Email,
		Phone:            doc.Phone,
		ComplianceStatus: ComplianceStatus(doc.ComplianceStatus),
		ComplianceScore:  doc.ComplianceScore,
		AssignedDate:     doc.AssignedDate,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		Version:          doc.Version,
	}
	if !full {
		return p
	}

	p.Goals = make([]Goal, 0, len(doc.Goals))
	for _, g := range doc.Goals {
		p.Goals = append(p.Goals, Goal{
			ID:           g.ID.Hex(),
			Title:        g.Title,
			Description:  g.Description,
			TargetValue:  g.TargetValue,
			CurrentValue: g.CurrentValue,
			Unit:         g.Unit,
			Deadline:     g.Deadline,
			Status:       GoalStatus(g.Status),
		})
	}
	p.DailyLogs = make([]DailyLog, 0, len(doc.DailyLogs))
	for _, l := range doc.DailyLogs {
		p.DailyLogs = append(p.DailyLogs, DailyLog{
			ID:         l.ID.Hex(),
			Date:       l.Date,
			Steps:      l.Steps,
			SleepHours: l.SleepHours,
			Notes:      l.Notes,
		})
	}
	p.Reminders = make([]Reminder, 0, len(doc.Reminders))
	for _, rm := range doc.Reminders {
		p.Reminders = append(p.Reminders, Reminder{
			ID:          rm.ID.Hex(),
			Title:       rm.Title,
			Description: rm.Description,
			DueDate:     rm.DueDate,
			Completed:   rm.Completed,
			Priority:    Priority(rm.Priority),
		})
	}
	p.ComplianceNotes = make([]ComplianceNote, 0, len(doc.ComplianceNotes))
	for _, n := range doc.ComplianceNotes {
		p.ComplianceNotes = append(p.ComplianceNotes, fromNoteDoc(n))
	}
	return p
}

func fromNoteDoc(n noteDoc) ComplianceNote {
	return ComplianceNote{
		ID:        n.ID.Hex(),
		Note:      n.Note,
		CreatedAt: n.CreatedAt,
		CreatedBy: n.CreatedBy,
	}
}

// parseObjectID accepts only the lowercase hex form ObjectID.Hex renders.
func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil || oid.Hex() != id {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}
