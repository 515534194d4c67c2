package stdlib

import (
	"math"
	"math/rand"

	"lua51.dev/vm/lua"
)

// OpenMath installs the math library.
func OpenMath(s *lua.State) {
	rng := rand.New(rand.NewSource(0))

	lib := s.RegisterLib(MathLibraryName, map[string]lua.Function{
		"abs":        math1("abs", math.Abs),
		"acos":       math1("acos", math.Acos),
		"asin":       math1("asin", math.Asin),
		"atan":       math1("atan", math.Atan),
		"atan2":      math2("atan2", math.Atan2),
		"ceil":       math1("ceil", math.Ceil),
		"cos":        math1("cos", math.Cos),
		"cosh":       math1("cosh", math.Cosh),
		"deg":        math1("deg", func(x float64) float64 { return x * 180 / math.Pi }),
		"exp":        math1("exp", math.Exp),
		"floor":      math1("floor", math.Floor),
		"fmod":       math2("fmod", math.Mod),
		"frexp":      mathFrexp,
		"ldexp":      mathLdexp,
		"log":        math1("log", math.Log),
		"log10":      math1("log10", math.Log10),
		"max":        mathMax,
		"min":        mathMin,
		"modf":       mathModf,
		"pow":        math2("pow", math.Pow),
		"rad":        math1("rad", func(x float64) float64 { return x * math.Pi / 180 }),
		"random":     newMathRandom(rng),
		"randomseed": newMathRandomSeed(rng),
		"sin":        math1("sin", math.Sin),
		"sinh":       math1("sinh", math.Sinh),
		"sqrt":       math1("sqrt", math.Sqrt),
		"tan":        math1("tan", math.Tan),
		"tanh":       math1("tanh", math.Tanh),
	})

	lib.Set(lua.String("pi"), lua.Number(math.Pi))
	lib.Set(lua.String("huge"), lua.Number(math.Inf(1)))
}

func math1(name string, f func(float64) float64) lua.Function {
	return func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
		x, err := checkNumber(s, args, 1, name)
		if err != nil {
			return nil, err
		}
		return []lua.Value{lua.Number(f(x))}, nil
	}
}

func math2(name string, f func(x, y float64) float64) lua.Function {
	return func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
		x, err := checkNumber(s, args, 1, name)
		if err != nil {
			return nil, err
		}
		y, err := checkNumber(s, args, 2, name)
		if err != nil {
			return nil, err
		}
		return []lua.Value{lua.Number(f(x, y))}, nil
	}
}

func mathMax(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	best, err := checkNumber(s, args, 1, "max")
	if err != nil {
		return nil, err
	}
	for i := 2; i <= len(args); i++ {
		x, err := checkNumber(s, args, i, "max")
		if err != nil {
			return nil, err
		}
		if x > best {
			best = x
		}
	}
	return []lua.Value{lua.Number(best)}, nil
}

func mathMin(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	best, err := checkNumber(s, args, 1, "min")
	if err != nil {
		return nil, err
	}
	for i := 2; i <= len(args); i++ {
		x, err := checkNumber(s, args, i, "min")
		if err != nil {
			return nil, err
		}
		if x < best {
			best = x
		}
	}
	return []lua.Value{lua.Number(best)}, nil
}

func mathModf(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	x, err := checkNumber(s, args, 1, "modf")
	if err != nil {
		return nil, err
	}
	ipart, fpart := math.Modf(x)
	return []lua.Value{lua.Number(ipart), lua.Number(fpart)}, nil
}

func mathFrexp(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	x, err := checkNumber(s, args, 1, "frexp")
	if err != nil {
		return nil, err
	}
	frac, exp := math.Frexp(x)
	return []lua.Value{lua.Number(frac), lua.Number(float64(exp))}, nil
}

func mathLdexp(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	x, err := checkNumber(s, args, 1, "ldexp")
	if err != nil {
		return nil, err
	}
	e, err := checkInt(s, args, 2, "ldexp")
	if err != nil {
		return nil, err
	}
	return []lua.Value{lua.Number(math.Ldexp(x, e))}, nil
}

func newMathRandom(rng *rand.Rand) lua.Function {
	return func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
		switch len(args) {
		case 0:
			return []lua.Value{lua.Number(rng.Float64())}, nil
		case 1:
			m, err := checkInt(s, args, 1, "random")
			if err != nil {
				return nil, err
			}
			if m < 1 {
				return nil, argError(s, 1, "random", "interval is empty")
			}
			return []lua.Value{lua.Number(float64(1 + rng.Intn(m)))}, nil
		default:
			lo, err := checkInt(s, args, 1, "random")
			if err != nil {
				return nil, err
			}
			hi, err := checkInt(s, args, 2, "random")
			if err != nil {
				return nil, err
			}
			if lo > hi {
				return nil, argError(s, 2, "random", "interval is empty")
			}
			return []lua.Value{lua.Number(float64(lo + rng.Intn(hi-lo+1)))}, nil
		}
	}
}

func newMathRandomSeed(rng *rand.Rand) lua.Function {
	return func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
		seed, err := checkNumber(s, args, 1, "randomseed")
		if err != nil {
			return nil, err
		}
		rng.Seed(int64(seed))
		return nil, nil
	}
}
