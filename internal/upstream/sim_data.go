package upstream

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quantgate/internal/apperr"
	"quantgate/pkg/types"
)

// Caps keep simulated range queries tractable no matter how wide the
// requested window is; the most recent rows win.
const (
	maxSimBars = 1000
	maxSimRows = 500
)

// Exchange time zone. A fixed zone avoids a tzdata dependency.
var cst = time.FixedZone("CST", 8*60*60)

// simListing carries the static reference attributes of one simulated
// symbol. Symbols outside the table still work; their attributes are
// derived from the code hash.
type simListing struct {
	name   string
	sector string
	listed string
	price  float64
}

var simUniverse = map[string]simListing{
	"000001.SZ": {"Ping An Bank", "Banks", "19910403", 13.52},
	"000002.SZ": {"Vanke A", "Real Estate", "19910129", 9.84},
	"000858.SZ": {"Wuliangye", "Baijiu", "19980427", 148.30},
	"002594.SZ": {"BYD", "New Energy", "20110630", 265.10},
	"300750.SZ": {"CATL", "New Energy", "20180611", 212.45},
	"600000.SH": {"SPD Bank", "Banks", "19991110", 8.41},
	"600036.SH": {"China Merchants Bank", "Banks", "20020409", 34.62},
	"600519.SH": {"Kweichow Moutai", "Baijiu", "20010827", 1705.00},
	"601318.SH": {"Ping An Insurance", "Insurance", "20070301", 48.77},
	"601988.SH": {"Bank of China", "Banks", "20060705", 4.52},
}

var simIndexes = map[string][]string{
	"000300.SH": {"600519.SH", "601318.SH", "600036.SH", "300750.SZ", "002594.SZ", "000858.SZ", "601988.SH", "600000.SH", "000001.SZ", "000002.SZ"},
	"000016.SH": {"600519.SH", "601318.SH", "600036.SH", "601988.SH", "600000.SH"},
}

// Lunar holidays move year to year, so they are tabulated for the years the
// simulator covers. Fixed-date holidays are generated for any year.
var simLunarHolidays = map[int][]string{
	2024: {"20240209", "20240212", "20240213", "20240214", "20240215", "20240216", "20240610", "20240917"},
	2025: {"20250128", "20250129", "20250130", "20250131", "20250203", "20250204", "20250602", "20251006"},
	2026: {"20260216", "20260217", "20260218", "20260219", "20260220", "20260619", "20260925"},
}

func simHolidays(year int) []string {
	dates := []string{
		fmt.Sprintf("%d0101", year),
		fmt.Sprintf("%d0404", year),
		fmt.Sprintf("%d0405", year),
	}
	for d := 1; d <= 5; d++ {
		dates = append(dates, fmt.Sprintf("%d050%d", year, d))
	}
	for d := 1; d <= 7; d++ {
		dates = append(dates, fmt.Sprintf("%d100%d", year, d))
	}
	dates = append(dates, simLunarHolidays[year]...)
	sort.Strings(dates)
	return dates
}

func simHolidaySet(year int) map[string]bool {
	set := make(map[string]bool)
	for _, d := range simHolidays(year) {
		set[d] = true
	}
	return set
}

func parseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation("20060102", s, cst)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// tradingDays lists exchange sessions in [start, end], oldest first.
func tradingDays(start, end time.Time) []time.Time {
	var days []time.Time
	holidays := simHolidaySet(start.Year())
	year := start.Year()
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Year() != year {
			year = d.Year()
			holidays = simHolidaySet(year)
		}
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if holidays[d.Format("20060102")] {
			continue
		}
		days = append(days, d)
	}
	return days
}

func simHash(parts ...string) int64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// dayRand returns a deterministic generator for one symbol-day, so any
// subrange of history replays identically.
func dayRand(symbol, day, salt string) *rand.Rand {
	return rand.New(rand.NewSource(simHash(symbol, day, salt)))
}

// dayAnchor is the deterministic opening price of a symbol-day, a bounded
// drift around the base price. Continuity across days is not promised;
// real sessions gap too.
func (s *Simulator) dayAnchor(symbol, day string) float64 {
	rng := dayRand(symbol, day, "anchor")
	drift := 0.9 + 0.2*rng.Float64()
	return round2(s.basePrice(symbol) * drift)
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// sessionTimes returns intraday timestamps for one session day at the given
// step, covering 09:30-11:30 and 13:00-15:00.
func sessionTimes(day time.Time, step time.Duration) []time.Time {
	var out []time.Time
	y, m, d := day.Date()
	morning := time.Date(y, m, d, 9, 30, 0, 0, cst)
	for t := morning; t.Before(time.Date(y, m, d, 11, 30, 0, 0, cst)); t = t.Add(step) {
		out = append(out, t)
	}
	afternoon := time.Date(y, m, d, 13, 0, 0, 0, cst)
	for t := afternoon; t.Before(time.Date(y, m, d, 15, 0, 0, 0, cst)); t = t.Add(step) {
		out = append(out, t)
	}
	return out
}

// barTimes lists bar-open timestamps for one symbol across the range,
// newest-capped at maxSimBars.
func barTimes(days []time.Time, period types.Period) []time.Time {
	var out []time.Time
	switch period {
	case types.Period1d:
		for _, d := range days {
			out = append(out, time.Date(d.Year(), d.Month(), d.Day(), 15, 0, 0, 0, cst))
		}
	case types.Period1w:
		for i, d := range days {
			if i%5 == 0 {
				out = append(out, time.Date(d.Year(), d.Month(), d.Day(), 15, 0, 0, 0, cst))
			}
		}
	case types.Period1mon:
		lastMonth := time.Month(0)
		for _, d := range days {
			if d.Month() != lastMonth {
				lastMonth = d.Month()
				out = append(out, time.Date(d.Year(), d.Month(), d.Day(), 15, 0, 0, 0, cst))
			}
		}
	default:
		step := period.Duration()
		if step <= 0 {
			step = time.Minute
		}
		for _, d := range days {
			out = append(out, sessionTimes(d, step)...)
		}
	}
	if len(out) > maxSimBars {
		out = out[len(out)-maxSimBars:]
	}
	return out
}

// genBars synthesizes an OHLCV series for one symbol. Each day walks from
// its deterministic anchor, so repeated queries agree.
func (s *Simulator) genBars(symbol string, times []time.Time) []types.KlineBar {
	bars := make([]types.KlineBar, 0, len(times))
	var (
		rng     *rand.Rand
		price   float64
		curDay  string
		baseVol = 1000 + simHash(symbol)%9000
	)
	for _, t := range times {
		day := t.Format("20060102")
		if day != curDay {
			curDay = day
			rng = dayRand(symbol, day, "bars")
			price = s.dayAnchor(symbol, day)
		}
		open := price
		change := (rng.Float64() - 0.5) * 0.01
		cl := round2(open * (1 + change))
		high := round2(maxF(open, cl) * (1 + rng.Float64()*0.003))
		low := round2(minF(open, cl) * (1 - rng.Float64()*0.003))
		volume := baseVol * int64(1+rng.Intn(100))
		bars = append(bars, types.KlineBar{
			Time:   t.UnixMilli(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  cl,
			Volume: volume,
			Amount: round2(cl * float64(volume)),
		})
		price = cl
	}
	return bars
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func (s *Simulator) rangeDays(startDate, endDate string) ([]time.Time, error) {
	start, err := parseDay(startDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDay(endDate)
	if err != nil {
		return nil, err
	}
	return tradingDays(start, end), nil
}

// MarketData synthesizes historical bars. Adjustment is echoed but not
// applied: simulated prices carry no corporate actions to adjust away.
func (s *Simulator) MarketData(ctx context.Context, q types.MarketDataQuery) ([]types.SymbolBars, error) {
	days, err := s.rangeDays(q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}
	out := make([]types.SymbolBars, 0, len(q.Symbols))
	for _, sym := range q.Symbols {
		out = append(out, types.SymbolBars{
			StockCode: sym,
			Period:    q.Period,
			Adjust:    q.Adjust,
			Bars:      s.genBars(sym, barTimes(days, q.Period)),
		})
	}
	return out, nil
}

// KlineRange is MarketData without field selection, kept as a separate
// operation to mirror the native library's catalogue.
func (s *Simulator) KlineRange(ctx context.Context, symbols []string, startDate, endDate string, period types.Period) ([]types.SymbolBars, error) {
	return s.MarketData(ctx, types.MarketDataQuery{
		Symbols:   symbols,
		StartDate: startDate,
		EndDate:   endDate,
		Period:    period,
		Adjust:    types.AdjustNone,
	})
}

// TickRange synthesizes one tick per session minute, newest-capped.
func (s *Simulator) TickRange(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.TickFrame, error) {
	days, err := s.rangeDays(startDate, endDate)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]types.TickFrame, len(symbols))
	for _, sym := range symbols {
		var frames []types.TickFrame
		for _, bar := range s.genBars(sym, capTimes(minuteTimes(days))) {
			frames = append(frames, s.tickFromBar(sym, bar))
		}
		out[sym] = frames
	}
	return out, nil
}

func minuteTimes(days []time.Time) []time.Time {
	var out []time.Time
	for _, d := range days {
		out = append(out, sessionTimes(d, time.Minute)...)
	}
	return out
}

func capTimes(times []time.Time) []time.Time {
	if len(times) > maxSimRows {
		return times[len(times)-maxSimRows:]
	}
	return times
}

func (s *Simulator) tickFromBar(symbol string, bar types.KlineBar) types.TickFrame {
	bid := make([]float64, 5)
	ask := make([]float64, 5)
	bidVol := make([]int64, 5)
	askVol := make([]int64, 5)
	rng := rand.New(rand.NewSource(simHash(symbol, fmt.Sprint(bar.Time), "book")))
	for i := 0; i < 5; i++ {
		step := float64(i+1) * 0.01
		bid[i] = round2(bar.Close - step)
		ask[i] = round2(bar.Close + step)
		bidVol[i] = int64(100 * (1 + rng.Intn(50)))
		askVol[i] = int64(100 * (1 + rng.Intn(50)))
	}
	return types.TickFrame{
		StockCode:  symbol,
		Time:       bar.Time,
		LastPrice:  bar.Close,
		Open:       bar.Open,
		High:       bar.High,
		Low:        bar.Low,
		LastClose:  bar.Open,
		Volume:     bar.Volume,
		Amount:     bar.Amount,
		BidPrices:  bid,
		BidVolumes: bidVol,
		AskPrices:  ask,
		AskVolumes: askVol,
	}
}

// FullTick returns the live snapshot for each symbol from the walk state.
func (s *Simulator) FullTick(ctx context.Context, symbols []string) ([]types.TickFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	out := make([]types.TickFrame, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, s.frameLocked(sym, now))
	}
	return out, nil
}

// L2Quote synthesizes ten-level book snapshots at one-minute spacing.
func (s *Simulator) L2Quote(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.L2Quote, error) {
	days, err := s.rangeDays(startDate, endDate)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]types.L2Quote, len(symbols))
	for _, sym := range symbols {
		var quotes []types.L2Quote
		for _, bar := range s.genBars(sym, capTimes(minuteTimes(days))) {
			rng := rand.New(rand.NewSource(simHash(sym, fmt.Sprint(bar.Time), "l2")))
			q := types.L2Quote{
				StockCode:  sym,
				Time:       bar.Time,
				LastPrice:  bar.Close,
				BidPrices:  make([]float64, 10),
				BidVolumes: make([]int64, 10),
				AskPrices:  make([]float64, 10),
				AskVolumes: make([]int64, 10),
			}
			for i := 0; i < 10; i++ {
				step := float64(i+1) * 0.01
				q.BidPrices[i] = round2(bar.Close - step)
				q.AskPrices[i] = round2(bar.Close + step)
				q.BidVolumes[i] = int64(100 * (1 + rng.Intn(80)))
				q.AskVolumes[i] = int64(100 * (1 + rng.Intn(80)))
			}
			quotes = append(quotes, q)
		}
		out[sym] = quotes
	}
	return out, nil
}

// L2Order synthesizes order events along the minute walk.
func (s *Simulator) L2Order(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.L2Order, error) {
	days, err := s.rangeDays(startDate, endDate)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]types.L2Order, len(symbols))
	for _, sym := range symbols {
		var orders []types.L2Order
		orderNo := int64(1)
		for _, bar := range s.genBars(sym, capTimes(minuteTimes(days))) {
			rng := rand.New(rand.NewSource(simHash(sym, fmt.Sprint(bar.Time), "l2o")))
			side := types.SideBuy
			if rng.Intn(2) == 1 {
				side = types.SideSell
			}
			orders = append(orders, types.L2Order{
				StockCode: sym,
				Time:      bar.Time,
				Price:     bar.Close,
				Volume:    int64(100 * (1 + rng.Intn(30))),
				Side:      side,
				OrderNo:   orderNo,
			})
			orderNo++
		}
		out[sym] = orders
	}
	return out, nil
}

// L2Transaction synthesizes trade prints along the minute walk.
func (s *Simulator) L2Transaction(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.L2Transaction, error) {
	days, err := s.rangeDays(startDate, endDate)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]types.L2Transaction, len(symbols))
	for _, sym := range symbols {
		var prints []types.L2Transaction
		no := int64(1)
		for _, bar := range s.genBars(sym, capTimes(minuteTimes(days))) {
			rng := rand.New(rand.NewSource(simHash(sym, fmt.Sprint(bar.Time), "l2t")))
			volume := int64(100 * (1 + rng.Intn(30)))
			flag := "B"
			if rng.Intn(2) == 1 {
				flag = "S"
			}
			prints = append(prints, types.L2Transaction{
				StockCode: sym,
				Time:      bar.Time,
				Price:     bar.Close,
				Volume:    volume,
				Amount:    round2(bar.Close * float64(volume)),
				BuyNo:     no,
				SellNo:    no + 1,
				TradeFlag: flag,
			})
			no += 2
		}
		out[sym] = prints
	}
	return out, nil
}

// Financial synthesizes quarterly report rows for each requested table.
// Row values are deterministic per symbol and report date.
func (s *Simulator) Financial(ctx context.Context, symbols, tables []string, startDate, endDate string) ([]types.FinancialTable, error) {
	quarterEnds := simQuarterEnds(startDate, endDate)
	out := make([]types.FinancialTable, 0, len(symbols)*len(tables))
	for _, sym := range symbols {
		for _, table := range tables {
			rows := make([]map[string]any, 0, len(quarterEnds))
			for _, qe := range quarterEnds {
				rng := rand.New(rand.NewSource(simHash(sym, table, qe)))
				revenue := round2(float64(1e8) * (1 + 50*rng.Float64()))
				profit := round2(revenue * (0.05 + 0.2*rng.Float64()))
				assets := round2(revenue * (3 + 5*rng.Float64()))
				rows = append(rows, map[string]any{
					"report_date":  qe,
					"revenue":      revenue,
					"net_profit":   profit,
					"total_assets": assets,
					"total_equity": round2(assets * (0.3 + 0.4*rng.Float64())),
					"eps":          round2(profit / 1e8),
					"roe":          round2(100 * profit / assets),
				})
			}
			out = append(out, types.FinancialTable{StockCode: sym, Table: table, Rows: rows})
		}
	}
	return out, nil
}

// simQuarterEnds returns the quarter-end dates in [start, end], or the four
// most recent ones when the range is open.
func simQuarterEnds(startDate, endDate string) []string {
	end := time.Now().In(cst)
	if endDate != "" {
		if t, err := parseDay(endDate); err == nil {
			end = t
		}
	}
	start := end.AddDate(-1, 0, 0)
	if startDate != "" {
		if t, err := parseDay(startDate); err == nil {
			start = t
		}
	}
	var out []string
	for y := start.Year(); y <= end.Year(); y++ {
		for _, md := range []string{"0331", "0630", "0930", "1231"} {
			d, err := parseDay(fmt.Sprintf("%d%s", y, md))
			if err != nil {
				continue
			}
			if !d.Before(start) && !d.After(end) {
				out = append(out, d.Format("20060102"))
			}
		}
	}
	return out
}

// SectorList returns the built-in sector names plus any custom sectors.
func (s *Simulator) SectorList(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var names []string
	for _, l := range simUniverse {
		if !seen[l.sector] {
			seen[l.sector] = true
			names = append(names, l.sector)
		}
	}
	for name := range s.custom {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// StocksInSector resolves custom sectors first so a user-defined list can
// shadow a built-in name.
func (s *Simulator) StocksInSector(ctx context.Context, name string) (types.Sector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sec, ok := s.custom[name]; ok {
		return sec, nil
	}
	var codes []string
	for code, l := range simUniverse {
		if l.sector == name {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return types.Sector{}, apperr.NotFound("sector", name)
	}
	sort.Strings(codes)
	return types.Sector{Name: name, StockList: codes}, nil
}

// CreateSector creates or resets a custom sector and persists it under the
// data dir so it survives a restart.
func (s *Simulator) CreateSector(ctx context.Context, name string, symbols []string) (types.Sector, error) {
	sec := types.Sector{Name: name, StockList: append([]string(nil), symbols...), Custom: true}
	if err := s.store.SaveSector(sec); err != nil {
		return types.Sector{}, fmt.Errorf("persist sector: %w", err)
	}
	s.mu.Lock()
	s.custom[name] = sec
	s.mu.Unlock()
	return sec, nil
}

// RemoveSector deletes a custom sector. Built-in sectors cannot be removed;
// removing an unknown custom sector is a no-op.
func (s *Simulator) RemoveSector(ctx context.Context, name string) error {
	s.mu.Lock()
	_, isCustom := s.custom[name]
	builtin := false
	if !isCustom {
		for _, l := range simUniverse {
			if l.sector == name {
				builtin = true
				break
			}
		}
	}
	delete(s.custom, name)
	s.mu.Unlock()

	if builtin {
		return apperr.InvalidArgument("sector %s is built-in and cannot be removed", name)
	}
	return s.store.DeleteSector(name)
}

// IndexWeight returns hash-derived constituent weights normalized to 100.
func (s *Simulator) IndexWeight(ctx context.Context, indexCode, date string) (types.IndexWeights, error) {
	members, ok := simIndexes[indexCode]
	if !ok {
		return types.IndexWeights{}, apperr.NotFound("index", indexCode)
	}
	if date == "" {
		date = time.Now().In(cst).Format("20060102")
	} else if _, err := parseDay(date); err != nil {
		return types.IndexWeights{}, err
	}

	raw := make([]float64, len(members))
	var total float64
	for i, code := range members {
		raw[i] = 1 + float64(simHash(indexCode, code, date)%1000)/100
		total += raw[i]
	}
	weights := make([]types.IndexWeight, len(members))
	for i, code := range members {
		weights[i] = types.IndexWeight{StockCode: code, Weight: round2(100 * raw[i] / total)}
	}
	sort.Slice(weights, func(i, j int) bool { return weights[i].Weight > weights[j].Weight })
	return types.IndexWeights{IndexCode: indexCode, Date: date, Weights: weights}, nil
}

// TradingCalendar lists the sessions and holidays of one year.
func (s *Simulator) TradingCalendar(ctx context.Context, year int) (types.TradingCalendar, error) {
	if year < 1990 || year > 2100 {
		return types.TradingCalendar{}, apperr.InvalidArgument("year %d out of range", year)
	}
	start := time.Date(year, 1, 1, 0, 0, 0, 0, cst)
	end := time.Date(year, 12, 31, 0, 0, 0, 0, cst)
	days := tradingDays(start, end)
	dates := make([]string, len(days))
	for i, d := range days {
		dates[i] = d.Format("20060102")
	}
	return types.TradingCalendar{Year: year, TradingDates: dates, Holidays: simHolidays(year)}, nil
}

// InstrumentInfo returns the static record of one symbol; codes outside the
// universe get hash-derived attributes rather than a miss, mirroring the
// native library which answers for any listed code.
func (s *Simulator) InstrumentInfo(ctx context.Context, code string) (types.Instrument, error) {
	s.mu.Lock()
	preClose := s.priceLocked(code)
	s.mu.Unlock()

	name := "Stock " + strings.SplitN(code, ".", 2)[0]
	listed := "20100101"
	if l, ok := simUniverse[code]; ok {
		name = l.name
		listed = l.listed
	}
	exchange := "SZ"
	if i := strings.IndexByte(code, '.'); i >= 0 {
		exchange = code[i+1:]
	}
	total := 1e9 + float64(simHash(code)%9e9)
	return types.Instrument{
		StockCode:      code,
		DisplayName:    name,
		ExchangeID:     exchange,
		InstrumentType: "STOCK",
		LotSize:        100,
		PreClose:       preClose,
		UpStopPrice:    round2(preClose * 1.1),
		DownStopPrice:  round2(preClose * 0.9),
		ListedDate:     listed,
		TotalVolume:    int64(total),
		FloatVolume:    int64(total * 0.7),
	}, nil
}

// Holidays returns every tabulated holiday, oldest first.
func (s *Simulator) Holidays(ctx context.Context) ([]string, error) {
	years := make([]int, 0, len(simLunarHolidays))
	for y := range simLunarHolidays {
		years = append(years, y)
	}
	sort.Ints(years)
	var out []string
	for _, y := range years {
		out = append(out, simHolidays(y)...)
	}
	return out, nil
}

func (s *Simulator) PeriodList(ctx context.Context) ([]string, error) {
	periods := types.Periods()
	out := make([]string, len(periods))
	for i, p := range periods {
		out[i] = string(p)
	}
	return out, nil
}

func (s *Simulator) DataDir(ctx context.Context) (string, error) {
	return s.cfg.DataDir, nil
}

// CBInfo returns a small static convertible-bond table tied to the universe.
func (s *Simulator) CBInfo(ctx context.Context) ([]types.ConvertibleBond, error) {
	return []types.ConvertibleBond{
		{BondCode: "127007.SZ", BondName: "Ping An CB", StockCode: "000001.SZ", ConvertPrice: 11.77, ListedDate: "20190218", MaturityDate: "20250121"},
		{BondCode: "110059.SH", BondName: "SPD CB", StockCode: "600000.SH", ConvertPrice: 12.92, ListedDate: "20191115", MaturityDate: "20251027"},
		{BondCode: "113050.SH", BondName: "CMB CB", StockCode: "600036.SH", ConvertPrice: 35.20, ListedDate: "20210330", MaturityDate: "20270310"},
	}, nil
}

// IPOInfo returns a small static new-issue table.
func (s *Simulator) IPOInfo(ctx context.Context) ([]types.IPO, error) {
	return []types.IPO{
		{StockCode: "301618.SZ", Name: "Canaan Tech", Market: "SZ", IssuePrice: 18.68, ListedDate: "20250115"},
		{StockCode: "603382.SH", Name: "Jiahua Energy", Market: "SH", IssuePrice: 22.40, ListedDate: "20250320"},
		{StockCode: "920108.BJ", Name: "Hongyu Precision", Market: "BJ", IssuePrice: 9.12, ListedDate: "20250506"},
	}, nil
}

// DividFactors synthesizes one ex-dividend record per year with a cumulative
// adjust factor.
func (s *Simulator) DividFactors(ctx context.Context, code string) ([]types.DividFactor, error) {
	year := time.Now().In(cst).Year()
	factor := 1.0
	out := make([]types.DividFactor, 0, 3)
	for y := year - 3; y < year; y++ {
		rng := rand.New(rand.NewSource(simHash(code, fmt.Sprint(y), "div")))
		cash := round2(0.1 + rng.Float64())
		factor *= 1 + rng.Float64()*0.05
		out = append(out, types.DividFactor{
			Date:          fmt.Sprintf("%d0630", y),
			CashDividend:  cash,
			ShareDividend: 0,
			Factor:        decimal.NewFromFloat(factor).Round(4).InexactFloat64(),
		})
	}
	return out, nil
}
