package stdlib

import (
	"os"
	"strings"
	"time"

	"lua51.dev/vm/lua"
)

var processStart = time.Now()

// OpenOS installs the minimal os library: clock/time/date plus
// getenv and difftime.
func OpenOS(s *lua.State) {
	s.RegisterLib(OSLibraryName, map[string]lua.Function{
		"clock":    osClock,
		"date":     osDate,
		"difftime": osDiffTime,
		"getenv":   osGetenv,
		"time":     osTime,
	})
}

func osClock(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	return []lua.Value{lua.Number(time.Since(processStart).Seconds())}, nil
}

func osTime(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t, ok := arg(args, 1).(*lua.Table)
	if !ok {
		return []lua.Value{lua.Number(float64(time.Now().Unix()))}, nil
	}

	field := func(name string, def int) int {
		v := t.Get(lua.String(name))
		if n, ok := lua.ToNumber(v); ok {
			return int(n)
		}
		return def
	}
	when := time.Date(
		field("year", 1970), time.Month(field("month", 1)), field("day", 1),
		field("hour", 12), field("min", 0), field("sec", 0),
		0, time.Local,
	)
	return []lua.Value{lua.Number(float64(when.Unix()))}, nil
}

func osDiffTime(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t2, err := checkNumber(s, args, 1, "difftime")
	if err != nil {
		return nil, err
	}
	t1, err := optNumber(s, args, 2, "difftime", 0)
	if err != nil {
		return nil, err
	}
	return []lua.Value{lua.Number(t2 - t1)}, nil
}

func osGetenv(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	name, err := checkString(s, args, 1, "getenv")
	if err != nil {
		return nil, err
	}
	v, ok := os.LookupEnv(name)
	if !ok {
		return []lua.Value{nil}, nil
	}
	return []lua.Value{lua.String(v)}, nil
}

func osDate(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	format, err := optString(s, args, 1, "date", "%c")
	if err != nil {
		return nil, err
	}
	when := time.Now()
	if arg(args, 2) != nil {
		secs, err := checkNumber(s, args, 2, "date")
		if err != nil {
			return nil, err
		}
		when = time.Unix(int64(secs), 0)
	}

	if strings.HasPrefix(format, "!") {
		when = when.UTC()
		format = format[1:]
	}

	if format == "*t" {
		t := s.NewTableValue(0, 8)
		t.Set(lua.String("year"), lua.Number(float64(when.Year())))
		t.Set(lua.String("month"), lua.Number(float64(when.Month())))
		t.Set(lua.String("day"), lua.Number(float64(when.Day())))
		t.Set(lua.String("hour"), lua.Number(float64(when.Hour())))
		t.Set(lua.String("min"), lua.Number(float64(when.Minute())))
		t.Set(lua.String("sec"), lua.Number(float64(when.Second())))
		t.Set(lua.String("wday"), lua.Number(float64(when.Weekday()+1)))
		t.Set(lua.String("yday"), lua.Number(float64(when.YearDay())))
		t.Set(lua.String("isdst"), lua.Bool(false))
		return []lua.Value{t}, nil
	}

	return []lua.Value{lua.String(strftime(format, when))}, nil
}

// strftime expands the strftime directives os.date documents onto a
// time value. Unrecognized directives pass through unchanged.
func strftime(format string, t time.Time) string {
	var out strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 >= len(format) {
			out.WriteByte(format[i])
			continue
		}
		i++
		switch format[i] {
		case 'Y':
			out.WriteString(t.Format("2006"))
		case 'y':
			out.WriteString(t.Format("06"))
		case 'm':
			out.WriteString(t.Format("01"))
		case 'd':
			out.WriteString(t.Format("02"))
		case 'H':
			out.WriteString(t.Format("15"))
		case 'M':
			out.WriteString(t.Format("04"))
		case 'S':
			out.WriteString(t.Format("05"))
		case 'p':
			out.WriteString(t.Format("PM"))
		case 'A':
			out.WriteString(t.Format("Monday"))
		case 'a':
			out.WriteString(t.Format("Mon"))
		case 'B':
			out.WriteString(t.Format("January"))
		case 'b':
			out.WriteString(t.Format("Jan"))
		case 'c':
			out.WriteString(t.Format("Mon Jan  2 15:04:05 2006"))
		case 'x':
			out.WriteString(t.Format("01/02/06"))
		case 'X':
			out.WriteString(t.Format("15:04:05"))
		case '%':
			out.WriteByte('%')
		default:
			out.WriteByte('%')
			out.WriteByte(format[i])
		}
	}
	return out.String()
}
