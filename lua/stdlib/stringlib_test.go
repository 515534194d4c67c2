package stdlib_test

import "testing"

func TestStringBasics(t *testing.T) {
	checkOutput(t, `print(string.len("hello"), string.upper("abc"), string.lower("ABC"))`, "5\tABC\tabc\n")
	checkOutput(t, `print(string.rep("ab", 3), string.reverse("abc"))`, "ababab\tcba\n")
	checkOutput(t, `print(string.sub("hello", 2, 4), string.sub("hello", -3), string.sub("hello", 2))`,
		"ell\tllo\tello\n")
	checkOutput(t, `print(string.byte("A"), string.char(104, 105))`, "65\thi\n")
	checkOutput(t, `print(string.byte("abc", 1, 3))`, "97\t98\t99\n")
}

func TestStringFind(t *testing.T) {
	checkOutput(t, `print(string.find("hello world", "world"))`, "7\t11\n")
	checkOutput(t, `print(string.find("hello", "xyz"))`, "nil\n")
	checkOutput(t, `print(string.find("abc123", "%d+"))`, "4\t6\n")
	checkOutput(t, `print(string.find("a.b", ".", 1, true))`, "2\t2\n")
	checkOutput(t, `print(string.find("key=value", "(%w+)=(%w+)"))`, "1\t9\tkey\tvalue\n")
}

func TestStringMatch(t *testing.T) {
	checkOutput(t, `print(string.match("hello 42 world", "%d+"))`, "42\n")
	checkOutput(t, `print(string.match("key=value", "(%w+)=(%w+)"))`, "key\tvalue\n")
	checkOutput(t, `print(string.match("hello", "^h"))`, "h\n")
	checkOutput(t, `print(string.match("hello", "o$"))`, "o\n")
	checkOutput(t, `print(string.match("hello", "^x"))`, "nil\n")
	checkOutput(t, `print(string.match("  trim  ", "^%s*(.-)%s*$"))`, "trim\n")
	checkOutput(t, `print(string.match("(nested)", "%b()"))`, "(nested)\n")
	checkOutput(t, `print(string.match("abc", "()b()"))`, "2\t3\n")
}

func TestStringGMatch(t *testing.T) {
	checkOutput(t, `
		local words = {}
		for w in string.gmatch("one two three", "%a+") do
			words[#words + 1] = w
		end
		print(#words, words[1], words[3])
	`, "3\tone\tthree\n")
	checkOutput(t, `
		local pairs = {}
		for k, v in string.gmatch("a=1,b=2", "(%w+)=(%w+)") do
			pairs[k] = v
		end
		print(pairs.a, pairs.b)
	`, "1\t2\n")
}

func TestStringGSub(t *testing.T) {
	checkOutput(t, `print(string.gsub("hello world", "o", "0"))`, "hell0 w0rld\t2\n")
	checkOutput(t, `print(string.gsub("hello world", "o", "0", 1))`, "hell0 world\t1\n")
	checkOutput(t, `print(string.gsub("hello", "(l+)", "[%1]"))`, "he[ll]o\t1\n")
	checkOutput(t, `print(string.gsub("abc", "%a", function(c) return c:upper() end))`, "ABC\t3\n")
	checkOutput(t, `print(string.gsub("a b", " ", {[" "] = "_"}))`, "a_b\t1\n")
	checkOutput(t, `print(string.gsub("keep", "x", "y"))`, "keep\t0\n")
}

func TestStringFormat(t *testing.T) {
	checkOutput(t, `print(string.format("%d + %d = %d", 2, 3, 5))`, "2 + 3 = 5\n")
	checkOutput(t, `print(string.format("%5d|%-5d|", 42, 42))`, "   42|42   |\n")
	checkOutput(t, `print(string.format("%.2f", 3.14159))`, "3.14\n")
	checkOutput(t, `print(string.format("%x %X %o", 255, 255, 8))`, "ff FF 10\n")
	checkOutput(t, `print(string.format("%s-%s", "a", 1))`, "a-1\n")
	checkOutput(t, `print(string.format("%q", 'say "hi"\n'))`, "\"say \\\"hi\\\"\\n\"\n")
	checkOutput(t, `print(string.format("100%%"))`, "100%\n")
	checkOutput(t, `print(string.format("%c%c", 104, 105))`, "hi\n")
}

func TestPatternClasses(t *testing.T) {
	checkOutput(t, `print(string.match("abc 123", "%a+"), string.match("abc 123", "%d+"))`, "abc\t123\n")
	checkOutput(t, `print(string.match("hello", "%l+"), string.match("HELLO", "%u+"))`, "hello\tHELLO\n")
	checkOutput(t, `print(string.match("a1 b2", "%w+"))`, "a1\n")
	checkOutput(t, `print(string.match("...x...", "%p+"))`, "...\n")
	checkOutput(t, `print(string.match("deadbeef", "%x+"))`, "deadbeef\n")
	// Uppercase classes are complements.
	checkOutput(t, `print(string.match("abc123", "%D+"))`, "abc\n")
}

func TestPatternSets(t *testing.T) {
	checkOutput(t, `print(string.match("hello", "[el]+"))`, "ell\n")
	checkOutput(t, `print(string.match("hello", "[^hel]+"))`, "o\n")
	checkOutput(t, `print(string.match("x42y", "[0-9]+"))`, "42\n")
	checkOutput(t, `print(string.match("a-b", "[%a%-]+"))`, "a-b\n")
}

func TestPatternQuantifiers(t *testing.T) {
	checkOutput(t, `print(string.match("<<abc>>", "<(.-)>"))`, "<abc\n")
	checkOutput(t, `print(string.match("<<abc>>", "<(.*)>"))`, "<abc>\n")
	checkOutput(t, `print(string.match("color", "colou?r"), string.match("colour", "colou?r"))`, "color\tcolour\n")
	checkOutput(t, `print(string.match("aaa", "a+"), string.match("", "a*") == "")`, "aaa\ttrue\n")
}
