// internal/resolver/resolver.go
package resolver

import (
	"context"
	"database/sql"
	"fmt"

	"campaign-workers/internal/common/errors"
	"campaign-workers/internal/common/logger"
	"campaign-workers/internal/models"

	"github.com/lib/pq"
)

// Resolver turns a campaign's declarative filter into a concrete,
// deduplicated recipient list with stable ordering. Ordering by customer id
// ascending makes repeated resolution against an unchanged dataset
// reproducible, which the worker relies on when re-snapshotting a retried job.
type Resolver struct {
	db     *sql.DB
	logger logger.Logger
}

func NewResolver(db *sql.DB, log logger.Logger) *Resolver {
	return &Resolver{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "resolver"}),
	}
}

// Resolve returns the recipients matching filterDoc within orgID, excluding
// customers with a blank email, the unsubscribed flag, or a per-org
// unsubscribe record. Results are deduplicated by customer id and ordered by
// customer id ascending.
func (r *Resolver) Resolve(ctx context.Context, orgID int64, filterDoc string) ([]models.ResolvedRecipient, error) {
	filter, err := ParseFilter(filterDoc)
	if err != nil {
		return nil, errors.NewInvalidFilterError(err.Error())
	}

	query, args := buildQuery(orgID, filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewResolutionFailedError(err)
	}
	defer rows.Close()

	var out []models.ResolvedRecipient
	for rows.Next() {
		var rec models.ResolvedRecipient
		if err := rows.Scan(
			&rec.CustomerID, &rec.Email, &rec.FirstName, &rec.LastName,
			&rec.Company, &rec.City, &rec.Phone,
		); err != nil {
			return nil, errors.NewResolutionFailedError(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewResolutionFailedError(err)
	}

	r.logger.Debug("resolved recipients", map[string]interface{}{
		"orgId": orgID,
		"count": len(out),
	})
	return out, nil
}

// buildQuery assembles the customer selection. Filter groups append AND
// clauses; each group's value list is an = ANY match, which gives the OR
// semantics within a group.
func buildQuery(orgID int64, filter *Filter) (string, []interface{}) {
	query := `
		SELECT c.id, c.email,
			COALESCE(c.first_name, ''), COALESCE(c.last_name, ''),
			COALESCE(c.company, ''), COALESCE(c.city, ''), COALESCE(c.phone, '')
		FROM customers c
		WHERE c.org_id = $1
			AND c.email IS NOT NULL AND c.email <> ''
			AND COALESCE(c.unsubscribed, FALSE) = FALSE
			AND NOT EXISTS (
				SELECT 1 FROM unsubscribes u
				WHERE u.org_id = c.org_id AND u.email = c.email
			)`
	args := []interface{}{orgID}

	if len(filter.Cities) > 0 {
		args = append(args, pq.Array(filter.Cities))
		query += fmt.Sprintf(" AND c.city = ANY($%d)", len(args))
	}
	if len(filter.Categories) > 0 {
		args = append(args, pq.Array(filter.Categories))
		query += fmt.Sprintf(" AND c.category = ANY($%d)", len(args))
	}
	if len(filter.Tags) > 0 {
		args = append(args, pq.Array(filter.Tags))
		query += fmt.Sprintf(` AND EXISTS (
				SELECT 1 FROM customer_tags t
				WHERE t.customer_id = c.id AND t.tag = ANY($%d)
			)`, len(args))
	}
	if len(filter.Segments) > 0 {
		args = append(args, pq.Array(filter.Segments))
		query += fmt.Sprintf(` AND EXISTS (
				SELECT 1 FROM segment_members m
				WHERE m.customer_id = c.id AND m.segment_id = ANY($%d)
			)`, len(args))
	}

	query += " ORDER BY c.id"
	return query, args
}
