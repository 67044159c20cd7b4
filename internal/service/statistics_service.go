package service

import (
	"context"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"
)

// unsoldStatuses never count as sales.
var unsoldStatuses = []model.OrderStatus{model.OrderStatusCancelled, model.OrderStatusRefunded}

const defaultTopProducts = 5

type StatisticsService interface {
	SalesReport(ctx context.Context, startDate, endDate time.Time, limit int) (*model.SalesReport, error)
}

type statisticsService struct {
	repo repository.StatisticsRepository
}

func NewStatisticsService(repo repository.StatisticsRepository) StatisticsService {
	return &statisticsService{repo: repo}
}

// SalesReport totals sold lines and ranks products by units sold in [startDate, endDate].
func (s *statisticsService) SalesReport(ctx context.Context, startDate, endDate time.Time, limit int) (*model.SalesReport, error) {
	if endDate.Before(startDate) {
		return nil, validation("end_date", "must not be before start_date")
	}
	if limit <= 0 || limit > 50 {
		limit = defaultTopProducts
	}

	totals, err := s.repo.GetSalesTotals(ctx, unsoldStatuses, startDate, endDate)
	if err != nil {
		return nil, err
	}
	top, err := s.repo.GetTopProducts(ctx, unsoldStatuses, startDate, endDate, limit)
	if err != nil {
		return nil, err
	}

	return &model.SalesReport{
		TotalOrders:        totals.Orders,
		UnitsSold:          totals.Units,
		GrossSales:         totals.Value,
		TopProducts:        top,
		TimeRangeStartDate: startDate,
		TimeRangeEndDate:   endDate,
	}, nil
}
