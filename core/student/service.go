package student

import (
	"context"
	"time"

	"github.com/trezcool/malipo/core"
)

type (
	Repository interface {
		QueryStudents(ctx context.Context, schoolID string, orderings ...core.DBOrdering) ([]Student, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		CreateStudent(ctx context.Context, st Student) (Student, error)
		UpdateStudent(ctx context.Context, st Student, isActive *bool) (Student, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Query(ctx context.Context, schoolID string, orderings ...core.DBOrdering) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, schoolID, orderings...)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	return svc.repo.CreateStudent(ctx, Student{
		SchoolID:  ns.SchoolID,
		Name:      ns.Name,
		Email:     ns.Email,
		Phone:     ns.Phone,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	return svc.repo.UpdateStudent(ctx, Student{
		ID:        id,
		Name:      us.Name,
		Email:     us.Email,
		Phone:     us.Phone,
		UpdatedAt: time.Now().UTC(),
	}, us.IsActive)
}

// StudentNames maps student IDs to display names for the school.
// Satisfies billing.StudentDirectory.
func (svc *Service) StudentNames(ctx context.Context, schoolID string) (map[string]string, error) {
	students, err := svc.repo.QueryStudents(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(students))
	for _, st := range students {
		names[st.ID] = st.Name
	}
	return names, nil
}
