// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Stdout(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"arithmetic", "print(1 + 2)\n", "3\n"},
		{"floor division and power", "print(7 // 2, 7 % 3, -7 // 2, 2 ** 10)\n", "3 1 -4 1024\n"},
		{"true division", "print(1 / 4)\n", "0.25\n"},
		{"float repr", "print(0.1 + 0.2)\n", "0.30000000000000004\n"},
		{"list comprehension", "print([x * x for x in range(5) if x % 2 == 0])\n", "[0, 4, 16]\n"},
		{"dict", "d = {'a': 1}\nd['b'] = 2\nprint(d, len(d))\n", "{'a': 1, 'b': 2} 2\n"},
		{"slicing", "xs = [1, 2, 3, 4, 5]\nprint(xs[1:3], xs[::-1], xs[-2:])\n", "[2, 3] [5, 4, 3, 2, 1] [4, 5]\n"},
		{"string methods", "print('a,b,c'.split(','), '-'.join(['x', 'y']), 'hi'.upper())\n", "['a', 'b', 'c'] x-y HI\n"},
		{"starred unpack", "a, *rest = [1, 2, 3]\nprint(a, rest)\n", "1 [2, 3]\n"},
		{
			"closure",
			"def outer(n):\n    def inner(m):\n        return n + m\n    return inner\n\nprint(outer(3)(4))\n",
			"7\n",
		},
		{
			"defaults and varargs",
			"def f(a, b=2):\n    return a + b\n\ndef g(*args):\n    return sum(args)\n\nprint(f(1), g(1, 2, 4))\n",
			"3 7\n",
		},
		{
			"try except finally",
			"try:\n    1 / 0\nexcept ZeroDivisionError as e:\n    print('caught', e)\nfinally:\n    print('done')\n",
			"caught division by zero\ndone\n",
		},
		{
			"while else",
			"n = 0\nwhile n < 3:\n    n += 1\nelse:\n    print('exhausted', n)\n",
			"exhausted 3\n",
		},
		{"sorted key reverse", "print(sorted(['bb', 'a', 'ccc'], key=len, reverse=True))\n", "['ccc', 'bb', 'a']\n"},
		{
			"enumerate and zip",
			"print(list(enumerate('ab')), list(zip([1, 2], 'xy')))\n",
			"[(0, 'a'), (1, 'b')] [(1, 'x'), (2, 'y')]\n",
		},
		{
			"global",
			"count = 1\ndef bump():\n    global count\n    count += 1\n\nbump()\nprint(count)\n",
			"2\n",
		},
		{"print keywords", "print(1, 2, sep='-', end='!')\n", "1-2!"},
		{"round", "print(round(2.5), round(3.14159, 2))\n", "2 3.14\n"},
		{"min max", "print(min(3, 1, 2), max([4, 9, 2]))\n", "1 9\n"},
		{"isinstance", "print(isinstance(True, int), type(1.5) is float)\n", "True True\n"},
		{"str format", "print('{} + {} = {}'.format(1, 2, 3))\n", "1 + 2 = 3\n"},
		{"percent format", "print('%d items at %.2f' % (3, 1.5))\n", "3 items at 1.50\n"},
		{"statistics", "import statistics\nprint(statistics.mean([1, 2, 3]), statistics.median([3, 1, 4, 2]))\n", "2.0 2.5\n"},
		{"statistics stdev", "from statistics import variance, pstdev\nprint(variance([1, 2, 3]), pstdev([2, 2]))\n", "1.0 0.0\n"},
		{"map lambda", "print(list(map(lambda v: v * 2, [1, 2])))\n", "[2, 4]\n"},
		{"chained comparison", "x = 5\nprint(1 < x < 10, 1 < x < 3)\n", "True False\n"},
		{"membership", "print(2 in [1, 2], 'z' not in 'abc')\n", "True True\n"},
		{"del", "d = {'a': 1, 'b': 2}\ndel d['a']\nprint(d)\n", "{'b': 2}\n"},
		{"chained assignment order", "a = [1, 2]\ni = 0\ni = a[i] = 1\nprint(i, a)\n", "1 [1, 1]\n"},
		{"chained assignment shared value", "x = y = []\nx.append(1)\nprint(y)\n", "[1]\n"},
		{"min int modulo", "print((-9223372036854775807 - 1) % -1, (-9223372036854775807 - 1) // 1)\n", "0 -9223372036854775808\n"},
		{"math module", "print(math.sqrt(16), math.floor(2.7), math.factorial(5))\n", "4.0 2 120\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRun_ExceptionMessages(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"index", "[1, 2][5]\n", "IndexError: list index out of range"},
		{"key", "{}['k']\n", "KeyError: 'k'"},
		{"type", "1 + 'a'\n", "TypeError: unsupported operand type(s) for +: 'int' and 'str'"},
		{"value", "int('x')\n", "ValueError: invalid literal for int() with base 10: 'x'"},
		{"raise", "raise ValueError('custom')\n", "ValueError: custom"},
		{"assert", "assert 1 == 2, 'nope'\n", "AssertionError: nope"},
		{"statistics mean", "import statistics\nstatistics.mean([])\n", "ValueError: mean requires at least one data point"},
		{"statistics not pre-bound", "statistics.mean([1])\n", "NameError: name 'statistics' is not defined"},
		{"no bare helpers", "y = relu(-3)\n", "NameError: name 'relu' is not defined"},
		{"private helper", "from statistics import _ss\n", "ImportError: cannot import name '_ss' from 'statistics'"},
		{"import", "import os\n", "ModuleNotFoundError: No module named 'os'"},
		{"floor division overflow", "x = (-9223372036854775807 - 1) // -1\n", "OverflowError: integer overflow (values are limited to 64 bits)"},
		{"multiplication overflow", "x = 9223372036854775807 * 2\n", "OverflowError: integer overflow (values are limited to 64 bits)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.src)
			var exc *Exception
			require.ErrorAs(t, err, &exc)
			assert.Equal(t, tt.want, exc.Error())
		})
	}
}
