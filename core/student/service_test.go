package student_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/student"
	dummydb "github.com/trezcool/malipo/storage/database/dummy"
	testutil "github.com/trezcool/malipo/tests"
)

var _ billing.StudentDirectory = (*student.Service)(nil)

func setup(t *testing.T) (*student.Service, student.Repository) {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	repo := dummydb.NewStudentRepository(db)
	return student.NewService(repo), repo
}

func Test_Service_crud(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	st, err := svc.Create(ctx, student.NewStudent{SchoolID: "sch1", Name: "Anna K", Email: "anna@test.cd"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	assert.True(t, st.IsActive)

	got, err := svc.GetByID(ctx, st.ID)
	if assert.NoError(t, err) {
		assert.Equal(t, "Anna K", got.Name)
	}

	inactive := false
	updated, err := svc.Update(ctx, st.ID, student.UpdateStudent{Name: "Anna Karenina", IsActive: &inactive})
	if assert.NoError(t, err) {
		assert.Equal(t, "Anna Karenina", updated.Name)
		assert.Equal(t, "anna@test.cd", updated.Email) // untouched fields survive updates at the repo level
		assert.False(t, updated.IsActive)
	}

	_, err = svc.GetByID(ctx, "ghost")
	assert.Equal(t, student.ErrNotFound, err)

	_, err = svc.Update(ctx, "ghost", student.UpdateStudent{Name: "No One"})
	assert.Equal(t, student.ErrNotFound, err)
}

func Test_Service_Query_ordering(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	boris := testutil.CreateStudent(t, repo, "sch1", "Boris P", "boris@test.cd")
	anna := testutil.CreateStudent(t, repo, "sch1", "Anna K", "anna@test.cd")
	testutil.CreateStudent(t, repo, "other", "Zoe", "zoe@test.cd")

	students, err := svc.Query(ctx, "sch1")
	if assert.NoError(t, err) && assert.Len(t, students, 2) {
		assert.Equal(t, anna.ID, students[0].ID)
		assert.Equal(t, boris.ID, students[1].ID)
	}

	students, err = svc.Query(ctx, "sch1", core.DBOrdering{Field: "name", Ascending: false})
	if assert.NoError(t, err) && assert.Len(t, students, 2) {
		assert.Equal(t, boris.ID, students[0].ID)
	}
}

func Test_Service_StudentNames(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	anna := testutil.CreateStudent(t, repo, "sch1", "Anna K", "anna@test.cd")
	testutil.CreateStudent(t, repo, "other", "Zoe", "zoe@test.cd")

	names, err := svc.StudentNames(ctx, "sch1")
	if assert.NoError(t, err) {
		assert.Equal(t, map[string]string{anna.ID: "Anna K"}, names)
	}
}

func Test_NewStudent_Validate(t *testing.T) {
	validate := testutil.NewValidator()

	ns := student.NewStudent{SchoolID: "sch1", Name: "  Anna K  ", Email: " ANNA@Test.CD "}
	if assert.NoError(t, ns.Validate(validate)) {
		assert.Equal(t, "Anna K", ns.Name)
		assert.Equal(t, "anna@test.cd", ns.Email)
	}

	ns = student.NewStudent{SchoolID: "sch1", Name: "Anna", Email: "not-an-email"}
	assert.Error(t, ns.Validate(validate))

	ns = student.NewStudent{Name: "Anna"}
	assert.Error(t, ns.Validate(validate))
}
