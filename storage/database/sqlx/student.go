package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/student"
)

// sortable student columns; anything else in an ordering is dropped.
var studentOrderFields = map[string]bool{
	"name":       true,
	"email":      true,
	"created_at": true,
	"updated_at": true,
}

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo studentRepository) QueryStudents(ctx context.Context, schoolID string, orderings ...core.DBOrdering) ([]student.Student, error) {
	orderBy := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		if studentOrderFields[ord.Field] {
			orderBy = append(orderBy, ord.String())
		}
	}
	if len(orderBy) == 0 {
		orderBy = append(orderBy, "name ASC")
	}

	students := make([]student.Student, 0)
	err := repo.db.SelectContext(ctx, &students,
		`SELECT * FROM students WHERE school_id = $1 ORDER BY `+strings.Join(orderBy, ", "), schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	var st student.Student
	if err := repo.db.GetContext(ctx, &st, `SELECT * FROM students WHERE id = $1`, id); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "getting student")
	}
	return st, nil
}

func (repo studentRepository) CreateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	st.ID = uuid.New().String()
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO students (id, school_id, name, email, phone, is_active, created_at, updated_at)
		VALUES (:id, :school_id, :name, :email, :phone, :is_active, :created_at, :updated_at)`,
		st,
	)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return st, nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, st student.Student, isActive *bool) (student.Student, error) {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}

	var updated student.Student
	var err error
	if isActive != nil {
		err = repo.db.GetContext(ctx, &updated, `
			UPDATE students SET name = $2, email = $3, phone = $4, is_active = $5, updated_at = $6
			WHERE id = $1 RETURNING *`,
			st.ID, st.Name, st.Email, st.Phone, *isActive, st.UpdatedAt)
	} else {
		err = repo.db.GetContext(ctx, &updated, `
			UPDATE students SET name = $2, email = $3, phone = $4, updated_at = $5
			WHERE id = $1 RETURNING *`,
			st.ID, st.Name, st.Email, st.Phone, st.UpdatedAt)
	}
	if err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "updating student")
	}
	return updated, nil
}
