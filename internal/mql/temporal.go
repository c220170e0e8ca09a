// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mql

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// $dateTrunc and $dateToString-via-a-generic-unit are not available, so every
// truncation unit is its own hand-rolled $dateToString format (or, for week and
// quarter, a day-arithmetic shift applied before formatting). The result is
// wrapped in a {"___date": …} envelope at the point it is computed, rather than
// in one generic pass over every DateTime-typed projection.
const (
	formatMinute = "%Y-%m-%dT%H:%M:00"
	formatHour   = "%Y-%m-%dT%H:00:00"
	formatDay    = "%Y-%m-%d"
	formatMonth  = "%Y-%m"
)

// millisPerDay converts a day-count shift into the milliseconds $subtract needs
// to move a BSON date.
const millisPerDay = 86400000

// IsExtraction reports whether unit pulls a scalar component rather than
// truncating to the start of a calendar period.
func (u TemporalUnit) IsExtraction() bool {
	switch u {
	case UnitMinuteOfHour, UnitHourOfDay, UnitDayOfWeek, UnitDayOfMonth, UnitDayOfYear,
		UnitWeekOfYear, UnitMonthOfYear, UnitQuarterOfYear:
		return true
	default:
		return false
	}
}

// coerceToDate wraps ref with the conversion needed to turn a non-DateTime field
// into a date the truncation/extraction operators can consume.
func coerceToDate(ref any, t Type) any {
	switch {
	case t.IsA(TypeUNIXTimestampMilliseconds):
		return bson.M{"$toDate": ref}
	case t.IsA(TypeUNIXTimestampSeconds):
		return bson.M{"$toDate": bson.M{"$multiply": bson.A{ref, 1000}}}
	default:
		return ref
	}
}

func dateToStringExpr(date any, format string) bson.M {
	return bson.M{"$dateToString": bson.M{"date": date, "format": format, "timezone": "UTC"}}
}

func dateEnvelope(expr any) bson.M {
	return bson.M{dateEnvelopeKey: expr}
}

// shiftByDays moves date backwards by offsetDays days (an expression, not a
// literal), for the week and quarter truncations, which bucket by subtracting a
// computed day offset from the timestamp before formatting it.
func shiftByDays(date any, offsetDays any) bson.M {
	millis := bson.M{"$multiply": bson.A{offsetDays, millisPerDay}}
	return bson.M{"$subtract": bson.A{date, millis}}
}

func dateField(op string, date any) bson.M {
	return bson.M{op: bson.M{"date": date, "timezone": "UTC"}}
}

// BucketExpr builds the aggregation expression that buckets ref (a field
// reference or nested expression) of type t by unit. It returns the expression
// and the type the expression evaluates to: TypeDateTime for the default unit and
// every calendar-truncation unit (minute through quarter), TypeInteger for year
// and every extraction unit.
func BucketExpr(ref any, t Type, unit TemporalUnit) (any, Type, error) {
	if !t.Bucketable() {
		return nil, "", fmt.Errorf("%w: %s is not bucketable", ErrInvalidQuery, t)
	}

	date := coerceToDate(ref, t)

	switch unit {
	case UnitDefault, "":
		return date, TypeDateTime, nil

	case UnitMinute:
		return dateEnvelope(dateToStringExpr(date, formatMinute)), TypeDateTime, nil

	case UnitHour:
		return dateEnvelope(dateToStringExpr(date, formatHour)), TypeDateTime, nil

	case UnitDay:
		return dateEnvelope(dateToStringExpr(date, formatDay)), TypeDateTime, nil

	case UnitWeek:
		dayOfWeek := dateField("$dayOfWeek", date)
		offset := bson.M{"$subtract": bson.A{dayOfWeek, 1}}
		shifted := shiftByDays(date, offset)

		return dateEnvelope(dateToStringExpr(shifted, formatDay)), TypeDateTime, nil

	case UnitMonth:
		return dateEnvelope(dateToStringExpr(date, formatMonth)), TypeDateTime, nil

	case UnitQuarter:
		dayOfYear := dateField("$dayOfYear", date)
		offset := bson.M{"$subtract": bson.A{bson.M{"$mod": bson.A{dayOfYear, 91}}, 3}}
		shifted := shiftByDays(date, offset)

		return dateEnvelope(dateToStringExpr(shifted, formatMonth)), TypeDateTime, nil

	// Unlike every other truncation, a year bucket is reported as the bare
	// calendar year integer: there is no shorter format string to disambiguate.
	case UnitYear:
		return dateField("$year", date), TypeInteger, nil

	case UnitMinuteOfHour:
		return dateField("$minute", date), TypeInteger, nil

	case UnitHourOfDay:
		return dateField("$hour", date), TypeInteger, nil

	case UnitDayOfWeek:
		return dateField("$dayOfWeek", date), TypeInteger, nil

	case UnitDayOfMonth:
		return dateField("$dayOfMonth", date), TypeInteger, nil

	case UnitDayOfYear:
		return dateField("$dayOfYear", date), TypeInteger, nil

	case UnitWeekOfYear:
		week := dateField("$week", date)
		return bson.M{"$add": bson.A{week, 1}}, TypeInteger, nil

	case UnitMonthOfYear:
		return dateField("$month", date), TypeInteger, nil

	case UnitQuarterOfYear:
		month := dateField("$month", date)
		shiftedMonth := bson.M{"$add": bson.A{month, 2}}
		mod := bson.M{"$mod": bson.A{shiftedMonth, 3}}
		numerator := bson.M{"$subtract": bson.A{shiftedMonth, mod}}

		return bson.M{"$divide": bson.A{numerator, 3}}, TypeInteger, nil

	default:
		return nil, "", ErrUnsupportedUnit
	}
}

// AbsoluteDatetimeValue computes the literal Go value an AbsoluteDatetime compares
// equal to, mirroring [BucketExpr]'s per-unit shape exactly: the raw time.Time
// for the default unit, a {___date: "…"} envelope string for every
// calendar-truncation unit from minute through quarter, or an int32 for year and
// every extraction unit. This symmetry is what
// lets a bucketed field be compared against an absolute-datetime literal of the
// same unit.
func AbsoluteDatetimeValue(a AbsoluteDatetime) (any, error) {
	return bucketLiteral(a.Time, a.Unit)
}

func bucketLiteral(t time.Time, unit TemporalUnit) (any, error) {
	t = t.UTC()

	switch unit {
	case UnitDefault, "":
		return t, nil
	case UnitMinute:
		return bson.M{dateEnvelopeKey: t.Format("2006-01-02T15:04:00")}, nil
	case UnitHour:
		return bson.M{dateEnvelopeKey: t.Format("2006-01-02T15:00:00")}, nil
	case UnitDay:
		return bson.M{dateEnvelopeKey: t.Format("2006-01-02")}, nil
	case UnitWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		start := day.AddDate(0, 0, -int(day.Weekday()))

		return bson.M{dateEnvelopeKey: start.Format("2006-01-02")}, nil
	case UnitMonth:
		return bson.M{dateEnvelopeKey: t.Format("2006-01")}, nil
	case UnitQuarter:
		// Mirrors BucketExpr's own dayOfYear-mod-91 shift exactly (not a cleaner
		// first-day-of-quarter truncation), so a bucketed field and this literal
		// land on the same month even where the mod-91 approximation misclassifies
		// a trailing day of a 91/92-day quarter.
		offset := (t.YearDay() % 91) - 3
		shifted := t.AddDate(0, 0, -offset)

		return bson.M{dateEnvelopeKey: shifted.Format("2006-01")}, nil
	case UnitYear:
		return int32(t.Year()), nil
	case UnitMinuteOfHour:
		return int32(t.Minute()), nil
	case UnitHourOfDay:
		return int32(t.Hour()), nil
	case UnitDayOfWeek:
		return int32(t.Weekday()) + 1, nil
	case UnitDayOfMonth:
		return int32(t.Day()), nil
	case UnitDayOfYear:
		return int32(t.YearDay()), nil
	case UnitWeekOfYear:
		return int32(mongoWeek(t)) + 1, nil
	case UnitMonthOfYear:
		return int32(t.Month()), nil
	case UnitQuarterOfYear:
		return int32((int(t.Month())-1)/3 + 1), nil
	default:
		return nil, ErrUnsupportedUnit
	}
}

// NormalizeRelativeDatetime resolves a RelativeDatetime against now into an
// AbsoluteDatetime. Extraction units make no sense for a relative offset (there is
// no "30 days-of-week ago") and are rejected.
func NormalizeRelativeDatetime(r RelativeDatetime, now time.Time) (AbsoluteDatetime, error) {
	if r.Unit.IsExtraction() {
		return AbsoluteDatetime{}, fmt.Errorf("%w: relative-datetime does not support unit %s", ErrInvalidQuery, r.Unit)
	}

	t := addUnit(now, r.Amount, r.Unit)

	return AbsoluteDatetime{Time: t, Unit: r.Unit}, nil
}

func addUnit(t time.Time, amount int, unit TemporalUnit) time.Time {
	switch unit {
	case UnitMinute:
		return t.Add(time.Duration(amount) * time.Minute)
	case UnitHour:
		return t.Add(time.Duration(amount) * time.Hour)
	case UnitWeek:
		return t.AddDate(0, 0, 7*amount)
	case UnitMonth:
		return t.AddDate(0, amount, 0)
	case UnitQuarter:
		return t.AddDate(0, 3*amount, 0)
	case UnitYear:
		return t.AddDate(amount, 0, 0)
	default:
		return t.AddDate(0, 0, amount)
	}
}

// mongoWeek reproduces the target engine's $week semantics: Sunday-based weeks
// numbered from 1, with any days before the year's first Sunday in week 0.
func mongoWeek(t time.Time) int {
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	daysToFirstSunday := (7 - int(jan1.Weekday())) % 7
	firstSunday := jan1.AddDate(0, 0, daysToFirstSunday)

	if t.Before(firstSunday) {
		return 0
	}

	days := int(t.Sub(firstSunday).Hours() / 24)

	return days/7 + 1
}
