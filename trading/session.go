package trading

import "time"

// 中国时区
var cst = time.FixedZone("CST", 8*3600)

// TimeRange 时间范围
type TimeRange struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
}

// A股交易时间段
var stockTradingHours = []TimeRange{
	{9, 30, 11, 30}, // 上午 9:30-11:30
	{13, 0, 15, 0},  // 下午 13:00-15:00
}

// 收盘时间 15:00
const closeMinutes = 15 * 60

// IsStockTradingTimeAt 判断指定时间是否为A股交易时间
func IsStockTradingTimeAt(t time.Time) bool {
	t = t.In(cst)

	weekday := t.Weekday()
	if weekday == time.Saturday || weekday == time.Sunday {
		return false
	}
	return isInTimeRanges(t, stockTradingHours)
}

// DailyBarFinal 判断某个交易日的日K在 now 时是否已经收盘定型。
// 当日 15:00 之前拉到的日K是盘中快照，回测时不能使用。
func DailyBarFinal(day, now time.Time) bool {
	d := day.Format("2006-01-02")
	n := now.In(cst)
	today := n.Format("2006-01-02")
	switch {
	case d < today:
		return true
	case d > today:
		return false
	}
	return n.Hour()*60+n.Minute() >= closeMinutes
}

// isInTimeRanges 检查时间是否在指定的时间范围内
func isInTimeRanges(t time.Time, ranges []TimeRange) bool {
	currentMinutes := t.Hour()*60 + t.Minute()

	for _, r := range ranges {
		startMinutes := r.StartHour*60 + r.StartMinute
		endMinutes := r.EndHour*60 + r.EndMinute
		if currentMinutes >= startMinutes && currentMinutes <= endMinutes {
			return true
		}
	}
	return false
}
