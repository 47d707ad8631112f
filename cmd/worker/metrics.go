package main

import (
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/grocery-orderflow/internal/events"
)

// CloudWatch metric names.
const (
	MetricOrdersPlaced       = "OrdersPlaced"
	MetricOrdersCancelled    = "OrdersCancelled"
	MetricOrderRevenue       = "OrderRevenue"
	MetricCouponRedemptions  = "CouponRedemptions"
	MetricOrderStatusChanged = "OrderStatusChanged"
)

// metricsFor maps an event to the datums it contributes. Unknown event
// types contribute nothing.
func metricsFor(e events.Event) []types.MetricDatum {
	ts := e.OccurredAt
	count := func(name string, dims ...types.Dimension) types.MetricDatum {
		return types.MetricDatum{
			MetricName: sdkaws.String(name),
			Value:      sdkaws.Float64(1),
			Unit:       types.StandardUnitCount,
			Timestamp:  &ts,
			Dimensions: dims,
		}
	}
	status := func(s string) types.Dimension {
		return types.Dimension{Name: sdkaws.String("Status"), Value: sdkaws.String(s)}
	}

	switch e.Type {
	case events.OrderPlaced:
		data := []types.MetricDatum{
			count(MetricOrdersPlaced),
			{
				MetricName: sdkaws.String(MetricOrderRevenue),
				Value:      sdkaws.Float64(e.Total),
				Unit:       types.StandardUnitNone,
				Timestamp:  &ts,
			},
		}
		if e.CouponCode != "" {
			data = append(data, count(MetricCouponRedemptions,
				types.Dimension{Name: sdkaws.String("CouponCode"), Value: sdkaws.String(e.CouponCode)}))
		}
		return data
	case events.OrderCancelled:
		return []types.MetricDatum{
			count(MetricOrdersCancelled),
			count(MetricOrderStatusChanged, status(e.Status)),
		}
	case events.OrderStatusChanged:
		return []types.MetricDatum{count(MetricOrderStatusChanged, status(e.Status))}
	}
	return nil
}
