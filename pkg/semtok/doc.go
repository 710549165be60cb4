/*
Package semtok provides semantic token support for the scrust language server.

🎨 Semantic Tokens Overview:
---------------------------
The editor colors most of scrust with its TextMate grammar. Semantic tokens add
one thing the grammar cannot know: which identifiers in call position are
procedures declared in the same file.

Architecture:
------------

	Document Text                LSP Server
	     |                            |
	     v                            v
	+-----------+   tokens     +-------------+
	|  @semtok  | -----------> |  @lsp       |
	+-----------+              +-------------+
	     |                            |
	 two regex passes           Builder / Encode
	     |                            |
	 byte offsets  ---------->  line / UTF-16 char

🔍 Passes:
---------
1. Definition Collector (CollectDefinitions)
  - `\bproc\s+(name)` adds name to the NameSet
  - remembers where each declared name starts

2. Call-Site Locator (LocateCalls)
  - `\b(name)\s*\(` where name is in the NameSet
  - skips the declared name itself
  - emits tokens in document order

Both passes are total over any input: incomplete code typed mid-edit simply
yields fewer tokens. The only failure is cancellation of the context.

Example Usage:
-------------

	tokens, err := semtok.GetTokensForText(ctx, content)
	if err != nil {
	    return err
	}
	data := semtok.Encode(tokens, string(content))

The package holds no mutable state, so concurrent requests need no locking.
*/
package semtok
