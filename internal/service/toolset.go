package service

import (
	"context"

	"saleschat/internal/models"
	"saleschat/internal/tools"
)

// RegisterSalesTools publishes the four data-access tools the model may
// invoke: structured aggregation, grouped top-N, invoice lookup, and
// free-text vector search.
func RegisterSalesTools(registry *tools.Registry, aggregator *AggregationService, retriever *RetrievalService) {
	dateFields := func() map[string]*tools.Param {
		return map[string]*tools.Param{
			"startDate": {Kind: tools.KindString, Description: "Inclusive start date, ISO-8601 (YYYY-MM-DD)."},
			"endDate":   {Kind: tools.KindString, Description: "Inclusive end date, ISO-8601 (YYYY-MM-DD)."},
		}
	}

	salesDataFields := dateFields()
	salesDataFields["operation"] = &tools.Param{
		Kind:        tools.KindEnum,
		Required:    true,
		Enum:        []string{"FILTER", "SUMMARY", "ANALYTICS", "TREND"},
		Description: "FILTER lists matching records, SUMMARY groups by payment method, ANALYTICS computes one statistic, TREND buckets sales over time.",
	}
	salesDataFields["paymentMethod"] = &tools.Param{Kind: tools.KindString, Description: "Payment method to filter by, e.g. Cash or Credit Card."}
	salesDataFields["invoice"] = &tools.Param{Kind: tools.KindString, Description: "Invoice number to filter by."}
	salesDataFields["customer"] = &tools.Param{Kind: tools.KindString, Description: "Customer name to filter by."}
	salesDataFields["item"] = &tools.Param{Kind: tools.KindString, Description: "Item name to filter by."}
	salesDataFields["region"] = &tools.Param{Kind: tools.KindString, Description: "Region substring matched against the sale address."}
	salesDataFields["analyticsType"] = &tools.Param{
		Kind:        tools.KindEnum,
		Enum:        []string{"TOTAL_SALES", "AVERAGE_SALES", "SALES_COUNT"},
		Description: "Statistic to compute. Required when operation is ANALYTICS.",
	}
	salesDataFields["groupBy"] = &tools.Param{
		Kind:        tools.KindEnum,
		Enum:        []string{"DAY", "WEEK", "MONTH"},
		Description: "Trend bucket size. Required when operation is TREND.",
	}
	salesDataFields["sortBy"] = &tools.Param{
		Kind:        tools.KindEnum,
		Enum:        []string{"PERIOD", "TOTAL_SALES", "COUNT"},
		Description: "Trend sort field. Defaults to PERIOD.",
	}
	salesDataFields["sortDirection"] = &tools.Param{
		Kind:        tools.KindEnum,
		Enum:        []string{"ASC", "DESC"},
		Description: "Trend sort direction. Defaults to ASC.",
	}
	salesDataFields["limit"] = &tools.Param{Kind: tools.KindInteger, Description: "Maximum number of trend buckets to return."}

	registry.Register(&tools.Tool{
		Name:        "getSalesData",
		Description: "Query the sales dataset: filter records, summarize by payment method, compute totals, averages and counts, or bucket sales into a time trend.",
		Params:      tools.Object(salesDataFields),
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return aggregator.Aggregate(ctx, AggregateRequest{
				Operation:     Operation(stringArg(args, "operation")),
				StartDate:     stringArg(args, "startDate"),
				EndDate:       stringArg(args, "endDate"),
				PaymentMethod: stringArg(args, "paymentMethod"),
				Invoice:       stringArg(args, "invoice"),
				Customer:      stringArg(args, "customer"),
				Item:          stringArg(args, "item"),
				Region:        stringArg(args, "region"),
				AnalyticsType: AnalyticsType(stringArg(args, "analyticsType")),
				Interval:      TrendInterval(stringArg(args, "groupBy")),
				SortBy:        TrendSortField(stringArg(args, "sortBy")),
				SortDesc:      stringArg(args, "sortDirection") == "DESC",
				Limit:         intArg(args, "limit"),
			})
		},
	})

	topSalesFields := dateFields()
	topSalesFields["groupBy"] = &tools.Param{
		Kind:        tools.KindEnum,
		Required:    true,
		Enum:        []string{"ITEM", "STATE", "CUSTOMER", "INVOICE", "PAYMENT_METHOD"},
		Description: "Categorical field to group sales by.",
	}
	topSalesFields["sortBy"] = &tools.Param{
		Kind:        tools.KindEnum,
		Enum:        []string{"TOTAL_SALES", "COUNT", "QUANTITY"},
		Description: "Ranking metric. Defaults to TOTAL_SALES.",
	}
	topSalesFields["limit"] = &tools.Param{Kind: tools.KindInteger, Description: "Number of top groups to return. Defaults to 5."}
	topSalesFields["paymentMethod"] = &tools.Param{Kind: tools.KindString, Description: "Payment method to filter by."}
	topSalesFields["customer"] = &tools.Param{Kind: tools.KindString, Description: "Customer name to filter by."}
	topSalesFields["item"] = &tools.Param{Kind: tools.KindString, Description: "Item name to filter by."}
	topSalesFields["region"] = &tools.Param{Kind: tools.KindString, Description: "Region substring matched against the sale address."}

	registry.Register(&tools.Tool{
		Name:        "getTopSales",
		Description: "Rank sales groups (top items, states, customers, invoices or payment methods) by total sales, count or quantity.",
		Params:      tools.Object(topSalesFields),
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return aggregator.GroupedTopN(ctx, GroupedRequest{
				GroupBy:       models.SaleGroupBy(stringArg(args, "groupBy")),
				SortBy:        models.GroupSortBy(stringArg(args, "sortBy")),
				Limit:         intArg(args, "limit"),
				StartDate:     stringArg(args, "startDate"),
				EndDate:       stringArg(args, "endDate"),
				PaymentMethod: stringArg(args, "paymentMethod"),
				Customer:      stringArg(args, "customer"),
				Item:          stringArg(args, "item"),
				Region:        stringArg(args, "region"),
			})
		},
	})

	registry.Register(&tools.Tool{
		Name:        "getInvoiceDetails",
		Description: "List every line item of one invoice together with the invoice total.",
		Params: tools.Object(map[string]*tools.Param{
			"invoice": {Kind: tools.KindString, Required: true, Description: "Invoice number to look up."},
		}),
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return aggregator.InvoiceDetails(ctx, stringArg(args, "invoice"))
		},
	})

	registry.Register(&tools.Tool{
		Name:        "searchSalesRecords",
		Description: "Semantic search over sales records for questions structured filters cannot answer. Returns the most relevant records for a free-text query.",
		Params: tools.Object(map[string]*tools.Param{
			"query": {Kind: tools.KindString, Required: true, Description: "Free-text description of the records to find."},
		}),
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return retriever.Retrieve(ctx, stringArg(args, "query"))
		},
	})
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return 0
}
