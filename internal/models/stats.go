package models

// DashboardStats aggregates the upload and chart logs for the dashboard cards.
type DashboardStats struct {
	TotalUploads int   `json:"totalUploads"`
	TotalCharts  int   `json:"totalCharts"`
	StorageUsed  int64 `json:"storageUsed"`
}
