package stdlib_test

import "testing"

func TestTableInsertRemove(t *testing.T) {
	checkOutput(t, `
		local t = {1, 2, 3}
		table.insert(t, 4)
		table.insert(t, 1, 0)
		print(t[1], t[2], t[5], #t)
	`, "0\t1\t4\t5\n")
	checkOutput(t, `
		local t = {"a", "b", "c"}
		local last = table.remove(t)
		local first = table.remove(t, 1)
		print(last, first, t[1], #t)
	`, "c\ta\tb\t1\n")
	checkOutput(t, `print(table.remove({}))`, "nil\n")
}

func TestTableConcat(t *testing.T) {
	checkOutput(t, `print(table.concat({1, 2, 3}))`, "123\n")
	checkOutput(t, `print(table.concat({"a", "b", "c"}, ", "))`, "a, b, c\n")
	checkOutput(t, `print(table.concat({"a", "b", "c"}, "-", 2, 3))`, "b-c\n")
	checkOutput(t, `print(table.concat({}))`, "\n")
}

func TestTableSort(t *testing.T) {
	checkOutput(t, `
		local t = {3, 1, 4, 1, 5, 9, 2, 6}
		table.sort(t)
		print(table.concat(t, ","))
	`, "1,1,2,3,4,5,6,9\n")
	checkOutput(t, `
		local t = {3, 1, 4, 1, 5}
		table.sort(t, function(a, b) return a > b end)
		print(table.concat(t, ","))
	`, "5,4,3,1,1\n")
	checkOutput(t, `
		local t = {"banana", "apple", "cherry"}
		table.sort(t)
		print(table.concat(t, " "))
	`, "apple banana cherry\n")
}

func TestTableSortComparatorError(t *testing.T) {
	checkOutput(t, `
		local ok = pcall(table.sort, {1, "two"},
			function(a, b) return a.x < b.x end)
		print(ok)
	`, "false\n")
}

func TestTableGetN(t *testing.T) {
	checkOutput(t, `print(table.getn({1, 2, 3}))`, "3\n")
}

func TestMathFunctions(t *testing.T) {
	checkOutput(t, `print(math.floor(3.7), math.ceil(3.2), math.abs(-5))`, "3\t4\t5\n")
	checkOutput(t, `print(math.max(1, 9, 4), math.min(1, 9, 4))`, "9\t1\n")
	checkOutput(t, `print(math.sqrt(16), math.pow(2, 10), math.fmod(7, 3))`, "4\t1024\t1\n")
	checkOutput(t, `print(math.huge > 1e308, math.pi > 3.14 and math.pi < 3.15)`, "true\ttrue\n")
	checkOutput(t, `print(math.modf(3.25))`, "3\t0.25\n")
	checkOutput(t, `
		local r = math.random()
		print(r >= 0 and r < 1)
		local n = math.random(5)
		print(n >= 1 and n <= 5 and n == math.floor(n))
		local m = math.random(10, 12)
		print(m >= 10 and m <= 12)
	`, "true\ntrue\ntrue\n")
}
