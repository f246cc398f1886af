package repositories

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/bson"

	"rental-chat/domain"
)

type IRelationshipRepository interface {
	Link(tenant, landlord domain.ProfileRef) error
	Partners(profileID string, profileType domain.ProfileType) ([]domain.ProfileRef, error)
}

// RelationshipRepository stores the tenant/landlord relationship graph.
// Each link is written twice, once per direction, so that resolution is a
// single prefix scan: "rel:{profile_type}:{profile_id}:{partner_id}"
// mapping to the partner's profile. Scanning in key order gives a stable
// partner ordering (by partner id).
type RelationshipRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRelationshipRepository(db *badger.DB, log *slog.Logger) RelationshipRepository {
	return RelationshipRepository{db: db, log: log}
}

type profileRecord struct {
	ID   string `bson:"id"`
	Name string `bson:"name"`
	Type string `bson:"type"`
}

func relationshipKey(ownerType domain.ProfileType, ownerID, partnerID string) []byte {
	return []byte(fmt.Sprintf("rel:%s:%s:%s", ownerType, ownerID, partnerID))
}

// Link records a tenant/landlord relationship. Assignment happens at
// signup time; this is the persistence of that fact, not a workflow.
func (r RelationshipRepository) Link(tenant, landlord domain.ProfileRef) error {
	landlordBytes, err := bson.Marshal(fromProfile(landlord))
	if err != nil {
		return err
	}
	tenantBytes, err := bson.Marshal(fromProfile(tenant))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(relationshipKey(domain.ProfileTenant, tenant.ID, landlord.ID), landlordBytes); err != nil {
			return err
		}
		return txn.Set(relationshipKey(domain.ProfileLandlord, landlord.ID, tenant.ID), tenantBytes)
	})
}

// Partners returns the counterparts linked to a profile, in stable key
// order. An empty result simply means no relationship exists yet.
func (r RelationshipRepository) Partners(profileID string, profileType domain.ProfileType) ([]domain.ProfileRef, error) {
	var raw [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("rel:%s:%s:", profileType, profileID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var partners []domain.ProfileRef
	for _, b := range raw {
		var record profileRecord
		if err = bson.Unmarshal(b, &record); err != nil {
			return nil, err
		}
		partners = append(partners, toProfile(record))
	}
	return partners, nil
}

func fromProfile(p domain.ProfileRef) profileRecord {
	return profileRecord{ID: p.ID, Name: p.Name, Type: string(p.Type)}
}

func toProfile(record profileRecord) domain.ProfileRef {
	return domain.ProfileRef{ID: record.ID, Name: record.Name, Type: domain.ProfileType(record.Type)}
}
