// Package prediction provides household usage forecasts. Forecasts are
// optional but let the battery limiter avoid discharging more energy into a
// slot than the house is expected to consume.
package prediction
