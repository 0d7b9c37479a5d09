package identity

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Document is the stored form of a UserInfo.
//
// Time is the last password reset in epoch milliseconds; 0 means never reset.
type Document struct {
	ID       bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Username string        `bson:"uid" json:"uid"`
	Password string        `bson:"password" json:"-"`
	Roles    []string      `bson:"roles" json:"roles"`
	Time     int64         `bson:"time" json:"time"`
}

// FromDocument builds a record from its stored form. The credential hash is taken from
// the document as-is.
func FromDocument(doc Document) (*UserInfo, error) {
	var id string
	if !doc.ID.IsZero() {
		id = doc.ID.Hex()
	}
	var reset time.Time
	if doc.Time > 0 {
		reset = time.UnixMilli(doc.Time)
	}
	return New(Params{
		ID:                id,
		Username:          doc.Username,
		CredentialHash:    doc.Password,
		Roles:             doc.Roles,
		LastPasswordReset: reset,
	})
}

// DecodeBSON decodes a raw BSON document into a record.
func DecodeBSON(raw []byte) (*UserInfo, error) {
	var doc Document
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("identity: decode document: %w", err)
	}
	return FromDocument(doc)
}

// FromMap decodes a loosely typed document, as returned by a driver cursor into bson.M.
func FromMap(m bson.M) (*UserInfo, error) {
	raw, err := bson.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("identity: encode map: %w", err)
	}
	return DecodeBSON(raw)
}

// Document returns the stored form of u. A non-hex ID is dropped.
func (u *UserInfo) Document() Document {
	doc := Document{
		Username: u.username,
		Password: u.hash,
		Roles:    u.Roles(),
	}
	if oid, err := bson.ObjectIDFromHex(u.id); err == nil {
		doc.ID = oid
	}
	if !u.lastReset.IsZero() {
		doc.Time = u.lastReset.UnixMilli()
	}
	return doc
}

// MarshalBSON encodes u in its Document form.
func (u *UserInfo) MarshalBSON() ([]byte, error) {
	return bson.Marshal(u.Document())
}
