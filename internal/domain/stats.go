package domain

import "time"

// DayCount is the number of occurrences on one calendar day.
type DayCount struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// CategoryCount is the number of distinct events carrying a category.
type CategoryCount struct {
	Category string `json:"category"`
	Events   int    `json:"events"`
}

// MapPoint is one located occurrence for the point map.
type MapPoint struct {
	EventID    string    `json:"event_id"`
	Title      string    `json:"title"`
	Categories string    `json:"categories"`
	Date       time.Time `json:"date"`
	Longitude  float64   `json:"longitude"`
	Latitude   float64   `json:"latitude"`
}
