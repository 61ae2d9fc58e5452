package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/bpcare/internal/application/services"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
)

func requestedLinks(patientID string, doctorIDs []string) []*entities.DoctorLink {
	links := make([]*entities.DoctorLink, 0, len(doctorIDs))
	for i, id := range doctorIDs {
		links = append(links, &entities.DoctorLink{
			ID:        "link-" + string(rune('a'+i)),
			PatientID: patientID,
			DoctorID:  id,
			Status:    entities.DoctorLinkStatusRequested,
		})
	}
	return links
}

func TestDoctorLinkService_Request(t *testing.T) {
	t.Run("caps new links at the free capacity in input order", func(t *testing.T) {
		links := new(MockDoctorLinkRepository)
		users := new(MockUserRepository)
		service := services.NewDoctorLinkService(links, users, 4, nil, nil)

		ids := []string{"d1", "d2", "d3", "d4", "d5", "d6"}
		links.On("ListByPatient", mock.Anything, "patient-1", []entities.DoctorLinkStatus(nil)).Return([]*entities.DoctorLink{}, nil)
		users.On("FilterDoctorIDs", mock.Anything, ids).Return(ids, nil)
		links.On("CreateRequested", mock.Anything, "patient-1", ids, 4).
			Return(requestedLinks("patient-1", ids[:4]), nil)

		res, err := service.Request(context.Background(), "patient-1", ids)
		require.NoError(t, err)

		require.Len(t, res.Created, 4)
		for i, l := range res.Created {
			assert.Equal(t, ids[i], l.DoctorID)
		}
		assert.Equal(t, []services.SkippedDoctor{
			{DoctorID: "d5", Reason: services.LinkSkipLimitReached},
			{DoctorID: "d6", Reason: services.LinkSkipLimitReached},
		}, res.Skipped)
		assert.Equal(t, 4, res.ActiveCount)
		assert.Equal(t, 4, res.Limit)
	})

	t.Run("reports existing pairs and non doctors", func(t *testing.T) {
		links := new(MockDoctorLinkRepository)
		users := new(MockUserRepository)
		bus := newRecordingBus()
		service := services.NewDoctorLinkService(links, users, 4, services.NewWorkflowPublisher(bus), nil)

		links.On("ListByPatient", mock.Anything, "patient-1", []entities.DoctorLinkStatus(nil)).Return([]*entities.DoctorLink{
			{PatientID: "patient-1", DoctorID: "d1", Status: entities.DoctorLinkStatusApproved},
			{PatientID: "patient-1", DoctorID: "d2", Status: entities.DoctorLinkStatusDeclined},
		}, nil)
		users.On("FilterDoctorIDs", mock.Anything, []string{"p2", "d3"}).Return([]string{"d3"}, nil)
		links.On("CreateRequested", mock.Anything, "patient-1", []string{"d3"}, 4).
			Return(requestedLinks("patient-1", []string{"d3"}), nil)

		res, err := service.Request(context.Background(), "patient-1", []string{" d1", "d2", "patient-1", "p2", "d3", "d3"})
		require.NoError(t, err)

		require.Len(t, res.Created, 1)
		assert.ElementsMatch(t, []services.SkippedDoctor{
			{DoctorID: "d1", Reason: services.LinkSkipAlreadyActive},
			{DoctorID: "d2", Reason: services.LinkSkipDeclined},
			{DoctorID: "patient-1", Reason: services.LinkSkipSelf},
			{DoctorID: "p2", Reason: services.LinkSkipNotDoctor},
		}, res.Skipped)
		assert.Equal(t, 2, res.ActiveCount)
		assert.Len(t, bus.on("doctor:d3"), 1)
	})

	t.Run("full patient creates nothing", func(t *testing.T) {
		links := new(MockDoctorLinkRepository)
		users := new(MockUserRepository)
		service := services.NewDoctorLinkService(links, users, 2, nil, nil)

		links.On("ListByPatient", mock.Anything, "patient-1", []entities.DoctorLinkStatus(nil)).Return([]*entities.DoctorLink{
			{DoctorID: "d1", Status: entities.DoctorLinkStatusApproved},
			{DoctorID: "d2", Status: entities.DoctorLinkStatusRequested},
		}, nil)
		users.On("FilterDoctorIDs", mock.Anything, []string{"d3"}).Return([]string{"d3"}, nil)

		res, err := service.Request(context.Background(), "patient-1", []string{"d3"})
		require.NoError(t, err)
		assert.Empty(t, res.Created)
		assert.Equal(t, []services.SkippedDoctor{{DoctorID: "d3", Reason: services.LinkSkipLimitReached}}, res.Skipped)
		links.AssertNotCalled(t, "CreateRequested", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty list", func(t *testing.T) {
		service := services.NewDoctorLinkService(new(MockDoctorLinkRepository), new(MockUserRepository), 4, nil, nil)
		_, err := service.Request(context.Background(), "patient-1", nil)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})
}

func TestDoctorLinkService_Respond(t *testing.T) {
	pending := func() *entities.DoctorLink {
		return &entities.DoctorLink{ID: "link-1", PatientID: "patient-1", DoctorID: "doc-1", Status: entities.DoctorLinkStatusRequested}
	}

	t.Run("accept", func(t *testing.T) {
		links := new(MockDoctorLinkRepository)
		service := services.NewDoctorLinkService(links, new(MockUserRepository), 4, nil, nil)
		links.On("GetByID", mock.Anything, "link-1").Return(pending(), nil)
		links.On("Respond", mock.Anything, mock.MatchedBy(func(l *entities.DoctorLink) bool {
			return l.Status == entities.DoctorLinkStatusApproved && l.RespondedAt != nil
		})).Return(nil)

		link, err := service.Accept(context.Background(), "link-1", "doc-1", "  Happy to help ")
		require.NoError(t, err)
		assert.Equal(t, "Happy to help", link.Comment)
		links.AssertExpectations(t)
	})

	t.Run("decline by another doctor is forbidden", func(t *testing.T) {
		links := new(MockDoctorLinkRepository)
		service := services.NewDoctorLinkService(links, new(MockUserRepository), 4, nil, nil)
		links.On("GetByID", mock.Anything, "link-1").Return(pending(), nil)

		_, err := service.Decline(context.Background(), "link-1", "doc-2", "")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeForbidden))
	})

	t.Run("already answered", func(t *testing.T) {
		links := new(MockDoctorLinkRepository)
		service := services.NewDoctorLinkService(links, new(MockUserRepository), 4, nil, nil)
		answered := pending()
		answered.Status = entities.DoctorLinkStatusDeclined
		links.On("GetByID", mock.Anything, "link-1").Return(answered, nil)

		_, err := service.Accept(context.Background(), "link-1", "doc-1", "")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotPending))
	})
}

func TestDoctorLinkService_MyDoctors(t *testing.T) {
	links := new(MockDoctorLinkRepository)
	service := services.NewDoctorLinkService(links, new(MockUserRepository), 4, nil, nil)
	links.On("ListByPatient", mock.Anything, "patient-1", []entities.DoctorLinkStatus(nil)).Return([]*entities.DoctorLink{
		{DoctorID: "d1", Status: entities.DoctorLinkStatusApproved},
		{DoctorID: "d2", Status: entities.DoctorLinkStatusRequested},
		{DoctorID: "d3", Status: entities.DoctorLinkStatusRequested},
	}, nil)

	out, err := service.MyDoctors(context.Background(), "patient-1")
	require.NoError(t, err)
	assert.Len(t, out.Approved, 1)
	assert.Len(t, out.Requested, 2)
	assert.Empty(t, out.Declined)
	assert.Equal(t, 2, out.Counts["requested"])
}
