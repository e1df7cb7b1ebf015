package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/student"
)

type studentRepository struct {
	db *studentTable
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db.student}
}

func (repo *studentRepository) QueryStudents(ctx context.Context, schoolID string, orderings ...core.DBOrdering) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := make([]student.Student, 0, len(repo.db.table))
	for _, st := range repo.db.table {
		if st.SchoolID == schoolID {
			students = append(students, *st)
		}
	}

	// only the first ordering is honored here; enough for tests
	less := func(i, j int) bool { return students[i].Name < students[j].Name }
	if len(orderings) > 0 {
		ord := orderings[0]
		switch ord.Field {
		case "created_at":
			less = func(i, j int) bool { return students[i].CreatedAt.Before(students[j].CreatedAt) }
		case "email":
			less = func(i, j int) bool { return students[i].Email < students[j].Email }
		}
		if !ord.Ascending {
			asc := less
			less = func(i, j int) bool { return asc(j, i) }
		}
	}
	sort.Slice(students, less)
	return students, nil
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if st, ok := repo.db.table[id]; ok {
		return *st, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) CreateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	st.ID = uuid.New().String()
	repo.db.table[st.ID] = &st
	return st, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, st student.Student, isActive *bool) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[st.ID]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	orig.Name = st.Name
	orig.Email = st.Email
	orig.Phone = st.Phone
	if isActive != nil {
		orig.IsActive = *isActive
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	orig.UpdatedAt = st.UpdatedAt
	return *orig, nil
}
