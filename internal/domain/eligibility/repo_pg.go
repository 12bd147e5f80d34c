package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type pgRepo struct{ pool *pgxpool.Pool }

// NewPGRepo returns a Repository backed by PostgreSQL. Case reads run in a
// single REPEATABLE READ read-only transaction; saves run in one transaction
// guarded by the patient's version column.
func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

const patientCols = `id, name, age, sex, status, category, surgery_date, proposed_treatment,
	center, assigned_providers, vitals, surgery_performed_at, status_changed_at, version,
	created_at, updated_at`

func (r *pgRepo) CreatePatient(ctx context.Context, c *Case) error {
	if c.Patient.ID == uuid.Nil {
		c.Patient.ID = uuid.New()
	}
	c.Patient.Version = 1
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	providers, vitals, err := encodePatientJSON(&c.Patient)
	if err != nil {
		return err
	}
	p := &c.Patient
	_, err = tx.Exec(ctx, `
		INSERT INTO patients (`+patientCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		p.ID, p.Name, p.Age, p.Sex.String(), p.Status.String(), p.Category.String(),
		p.SurgeryDate, p.ProposedTreatment.String(), p.Center, providers, vitals,
		p.SurgeryPerformedAt, p.StatusChangedAt, p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return invalidArg("patient %s already exists", p.ID)
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	if err := writeChildren(ctx, tx, c); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *pgRepo) LoadCase(ctx context.Context, patientID uuid.UUID) (*Case, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	c := &Case{}
	p, err := scanPatient(tx.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("patient %s", patientID)
	}
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	c.Patient = *p

	if c.Documents, err = loadDocuments(ctx, tx, patientID); err != nil {
		return nil, err
	}
	if c.Clearances, err = loadClearances(ctx, tx, patientID); err != nil {
		return nil, err
	}
	if c.Disqualifications, err = loadDisqualifications(ctx, tx, patientID); err != nil {
		return nil, err
	}
	if c.Comments, err = loadComments(ctx, tx, patientID); err != nil {
		return nil, err
	}
	if c.Audit, err = loadAudit(ctx, tx, patientID); err != nil {
		return nil, err
	}
	if c.Recommendation, err = loadSnapshot(ctx, tx, patientID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit read: %w", err)
	}
	return c, nil
}

func (r *pgRepo) SaveCase(ctx context.Context, c *Case) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	providers, vitals, err := encodePatientJSON(&c.Patient)
	if err != nil {
		return err
	}
	p := &c.Patient
	tag, err := tx.Exec(ctx, `
		UPDATE patients SET name=$3, age=$4, sex=$5, status=$6, category=$7, surgery_date=$8,
			proposed_treatment=$9, center=$10, assigned_providers=$11, vitals=$12,
			surgery_performed_at=$13, status_changed_at=$14, updated_at=$15, version = version + 1
		WHERE id = $1 AND version = $2`,
		p.ID, p.Version, p.Name, p.Age, p.Sex.String(), p.Status.String(), p.Category.String(),
		p.SurgeryDate, p.ProposedTreatment.String(), p.Center, providers, vitals,
		p.SurgeryPerformedAt, p.StatusChangedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errVersionConflict
	}
	if err := writeChildren(ctx, tx, c); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	p.Version++
	return nil
}

// writeChildren upserts mutable child rows and inserts append-only rows that
// are not yet stored. Nothing is ever deleted.
func writeChildren(ctx context.Context, q queryable, c *Case) error {
	pid := c.Patient.ID
	for _, d := range c.Documents {
		_, err := q.Exec(ctx, `
			INSERT INTO requested_documents (id, patient_id, name, reason, available, approved, cleared,
				requested_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (id) DO UPDATE SET available=EXCLUDED.available, approved=EXCLUDED.approved,
				cleared=EXCLUDED.cleared, updated_at=EXCLUDED.updated_at`,
			d.ID, pid, d.Name, d.Reason, d.Available, d.Approved, d.Cleared, d.RequestedAt, d.UpdatedAt)
		if err != nil {
			return fmt.Errorf("save document %s: %w", d.ID, err)
		}
	}
	for _, cr := range c.Clearances {
		_, err := q.Exec(ctx, `
			INSERT INTO clearances (patient_id, provider_id, provider_name, provider_type, cleared, date, recorded_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (patient_id, provider_id) DO UPDATE SET provider_name=EXCLUDED.provider_name,
				provider_type=EXCLUDED.provider_type, cleared=EXCLUDED.cleared, date=EXCLUDED.date,
				recorded_at=EXCLUDED.recorded_at`,
			pid, cr.ProviderID, cr.ProviderName, cr.ProviderType.String(), cr.Cleared, cr.Date, cr.RecordedAt)
		if err != nil {
			return fmt.Errorf("save clearance %s: %w", cr.ProviderID, err)
		}
	}
	for _, d := range c.Disqualifications {
		_, err := q.Exec(ctx, `
			INSERT INTO disqualifications (id, patient_id, provider_id, provider_name, reason, date, recorded_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO NOTHING`,
			d.ID, pid, d.ProviderID, d.ProviderName, d.Reason, d.Date, d.RecordedAt)
		if err != nil {
			return fmt.Errorf("save disqualification %s: %w", d.ID, err)
		}
	}
	for _, cm := range c.Comments {
		_, err := q.Exec(ctx, `
			INSERT INTO comments (id, patient_id, commenter, text, date_time)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (id) DO NOTHING`,
			cm.ID, pid, cm.Commenter, cm.Text, cm.DateTime)
		if err != nil {
			return fmt.Errorf("save comment %s: %w", cm.ID, err)
		}
	}
	for _, a := range c.Audit {
		_, err := q.Exec(ctx, `
			INSERT INTO audit_entries (id, patient_id, action, from_value, to_value, actor_id, ts)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO NOTHING`,
			a.ID, pid, string(a.Action), a.From, a.To, a.ActorID, a.Timestamp)
		if err != nil {
			return fmt.Errorf("save audit entry %s: %w", a.ID, err)
		}
	}
	if s := c.Recommendation; s != nil {
		callouts, err := json.Marshal(nonNil(s.Callouts))
		if err != nil {
			return fmt.Errorf("encode callouts: %w", err)
		}
		recs, err := json.Marshal(nonNil(s.Recommendations))
		if err != nil {
			return fmt.Errorf("encode recommendations: %w", err)
		}
		_, err = q.Exec(ctx, `
			INSERT INTO recommendation_snapshots (patient_id, callouts, recommendations, scheduling_category,
				summary, received_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (patient_id) DO UPDATE SET callouts=EXCLUDED.callouts,
				recommendations=EXCLUDED.recommendations, scheduling_category=EXCLUDED.scheduling_category,
				summary=EXCLUDED.summary, received_at=EXCLUDED.received_at`,
			pid, callouts, recs, s.SchedulingCategory, s.Summary, s.ReceivedAt)
		if err != nil {
			return fmt.Errorf("save recommendation snapshot: %w", err)
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func encodePatientJSON(p *Patient) (providers, vitals []byte, err error) {
	providers, err = json.Marshal(nonNil(p.AssignedProviders))
	if err != nil {
		return nil, nil, fmt.Errorf("encode assigned providers: %w", err)
	}
	if p.Vitals != nil {
		if vitals, err = json.Marshal(p.Vitals); err != nil {
			return nil, nil, fmt.Errorf("encode vitals: %w", err)
		}
	}
	return providers, vitals, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p                                Patient
		sex, status, category, treatment string
		providers, vitals                []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Age, &sex, &status, &category, &p.SurgeryDate, &treatment,
		&p.Center, &providers, &vitals, &p.SurgeryPerformedAt, &p.StatusChangedAt, &p.Version,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Sex, err = ParseSex(sex); err != nil {
		return nil, err
	}
	if p.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	if p.Category, err = ParseCategory(category); err != nil {
		return nil, err
	}
	if p.ProposedTreatment, err = ParseTreatment(treatment); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(providers, &p.AssignedProviders); err != nil {
		return nil, fmt.Errorf("decode assigned providers: %w", err)
	}
	if len(vitals) > 0 {
		p.Vitals = &Vitals{}
		if err := json.Unmarshal(vitals, p.Vitals); err != nil {
			return nil, fmt.Errorf("decode vitals: %w", err)
		}
	}
	return &p, nil
}

func loadDocuments(ctx context.Context, q queryable, pid uuid.UUID) ([]RequestedDocument, error) {
	rows, err := q.Query(ctx, `
		SELECT id, name, reason, available, approved, cleared, requested_at, updated_at
		FROM requested_documents WHERE patient_id = $1 ORDER BY seq`, pid)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()
	var out []RequestedDocument
	for rows.Next() {
		d := RequestedDocument{PatientID: pid}
		if err := rows.Scan(&d.ID, &d.Name, &d.Reason, &d.Available, &d.Approved, &d.Cleared,
			&d.RequestedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func loadClearances(ctx context.Context, q queryable, pid uuid.UUID) ([]ClearanceRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT provider_id, provider_name, provider_type, cleared, date, recorded_at
		FROM clearances WHERE patient_id = $1 ORDER BY seq`, pid)
	if err != nil {
		return nil, fmt.Errorf("load clearances: %w", err)
	}
	defer rows.Close()
	var out []ClearanceRecord
	for rows.Next() {
		cr := ClearanceRecord{PatientID: pid}
		var typ string
		if err := rows.Scan(&cr.ProviderID, &cr.ProviderName, &typ, &cr.Cleared, &cr.Date, &cr.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan clearance: %w", err)
		}
		if cr.ProviderType, err = ParseProviderType(typ); err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

func loadDisqualifications(ctx context.Context, q queryable, pid uuid.UUID) ([]DisqualificationRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT id, provider_id, provider_name, reason, date, recorded_at
		FROM disqualifications WHERE patient_id = $1 ORDER BY seq`, pid)
	if err != nil {
		return nil, fmt.Errorf("load disqualifications: %w", err)
	}
	defer rows.Close()
	var out []DisqualificationRecord
	for rows.Next() {
		d := DisqualificationRecord{PatientID: pid}
		if err := rows.Scan(&d.ID, &d.ProviderID, &d.ProviderName, &d.Reason, &d.Date, &d.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan disqualification: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func loadComments(ctx context.Context, q queryable, pid uuid.UUID) ([]Comment, error) {
	rows, err := q.Query(ctx, `
		SELECT id, commenter, text, date_time FROM comments WHERE patient_id = $1 ORDER BY seq`, pid)
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	defer rows.Close()
	var out []Comment
	for rows.Next() {
		cm := Comment{PatientID: pid}
		if err := rows.Scan(&cm.ID, &cm.Commenter, &cm.Text, &cm.DateTime); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, cm)
	}
	return out, rows.Err()
}

func loadAudit(ctx context.Context, q queryable, pid uuid.UUID) ([]AuditEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT id, action, from_value, to_value, actor_id, ts
		FROM audit_entries WHERE patient_id = $1 ORDER BY seq`, pid)
	if err != nil {
		return nil, fmt.Errorf("load audit: %w", err)
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		a := AuditEntry{PatientID: pid}
		var action string
		if err := rows.Scan(&a.ID, &action, &a.From, &a.To, &a.ActorID, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		a.Action = AuditAction(action)
		out = append(out, a)
	}
	return out, rows.Err()
}

func loadSnapshot(ctx context.Context, q queryable, pid uuid.UUID) (*RecommendationSnapshot, error) {
	var (
		s              RecommendationSnapshot
		callouts, recs []byte
	)
	err := q.QueryRow(ctx, `
		SELECT callouts, recommendations, scheduling_category, summary, received_at
		FROM recommendation_snapshots WHERE patient_id = $1`, pid).
		Scan(&callouts, &recs, &s.SchedulingCategory, &s.Summary, &s.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load recommendation snapshot: %w", err)
	}
	if err := json.Unmarshal(callouts, &s.Callouts); err != nil {
		return nil, fmt.Errorf("decode callouts: %w", err)
	}
	if err := json.Unmarshal(recs, &s.Recommendations); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	return &s, nil
}

func (r *pgRepo) ListPatients(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	where, args := patientWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	query := `SELECT ` + patientCols + ` FROM patients` + where + ` ORDER BY created_at DESC, id`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func patientWhere(f PatientFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(expr string, v interface{}) {
		args = append(args, v)
		conds = append(conds, strings.Replace(expr, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.Status != 0 {
		add("status = ?", f.Status.String())
	}
	if f.Category != 0 {
		add("category = ?", f.Category.String())
	}
	if f.Treatment != 0 {
		add("proposed_treatment = ?", f.Treatment.String())
	}
	if f.Sex != 0 {
		add("sex = ?", f.Sex.String())
	}
	if f.Center != "" {
		add("LOWER(center) = LOWER(?)", f.Center)
	}
	if f.Query != "" {
		add("name ILIKE ?", "%"+f.Query+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *pgRepo) FindDocumentOwner(ctx context.Context, docID uuid.UUID) (uuid.UUID, error) {
	var pid uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT patient_id FROM requested_documents WHERE id = $1`, docID).Scan(&pid)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, notFound("document %s", docID)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("find document: %w", err)
	}
	return pid, nil
}

func (r *pgRepo) CreateProvider(ctx context.Context, p *Provider) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO providers (id, name, type, center, email, phone, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.Name, p.Type.String(), p.Center, p.Email, p.Phone, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return invalidArg("provider %s already exists", p.ID)
		}
		return fmt.Errorf("insert provider: %w", err)
	}
	return nil
}

const providerCols = `id, name, type, center, email, phone`

func scanProvider(row pgx.Row) (*Provider, error) {
	var (
		p   Provider
		typ string
	)
	if err := row.Scan(&p.ID, &p.Name, &typ, &p.Center, &p.Email, &p.Phone); err != nil {
		return nil, err
	}
	var err error
	if p.Type, err = ParseProviderType(typ); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pgRepo) GetProvider(ctx context.Context, id string) (*Provider, error) {
	p, err := scanProvider(r.pool.QueryRow(ctx, `SELECT `+providerCols+` FROM providers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("provider %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return p, nil
}

func (r *pgRepo) ListProviders(ctx context.Context) ([]*Provider, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+providerCols+` FROM providers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()
	var out []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pgRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
