package format

import (
	"strconv"
	"time"
)

var monthNames = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// PeriodLabel renders the billing period of t, e.g. "Janeiro 2025".
func PeriodLabel(t time.Time) string {
	return monthNames[t.Month()-1] + " " + strconv.Itoa(t.Year())
}

// PeriodStart truncates t to the first instant of its month in UTC.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Date renders a calendar date as dd/mm/yyyy.
func Date(t time.Time) string {
	return t.Format("02/01/2006")
}
